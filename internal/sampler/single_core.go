package sampler

import (
	"context"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// SingleCore evaluates proposals one after another.
type SingleCore struct {
	Base
}

func NewSingleCore(seed uint64) *SingleCore {
	return &SingleCore{Base: Base{Seed: seed}}
}

func (s *SingleCore) SampleUntilNAccepted(ctx context.Context, n int, simulate SimulateFunc, opts Options) (*domain.Sample, error) {
	call := s.nextCall()
	c := newCollector(n, opts, s.RecordRejected)
	for i := 0; !c.decided(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if (opts.MaxEval > 0 && i >= opts.MaxEval) || s.isStopped() {
			break
		}
		p, err := simulate(ctx, s.RNG(call, i))
		c.add(i, p, err)
	}
	sample, err := c.result()
	if err != nil {
		return nil, err
	}
	return s.finish(sample, n)
}
