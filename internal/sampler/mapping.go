package sampler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// MapFunc applies fn to every index in [0, n).
type MapFunc func(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error

// SerialMap is a MapFunc running in the calling goroutine.
func SerialMap(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// BoundedMap returns a MapFunc running at most workers calls at a time.
// Non-positive workers mean GOMAXPROCS.
func BoundedMap(workers int) MapFunc {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return func(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := 0; i < n; i++ {
			g.Go(func() error {
				return fn(gctx, i)
			})
		}
		return g.Wait()
	}
}

// Mapping evaluates proposals in batches through a map function. Each batch
// holds as many evaluations as acceptances are still missing.
type Mapping struct {
	Base
	Map MapFunc
}

func NewMapping(seed uint64, m MapFunc) *Mapping {
	if m == nil {
		m = SerialMap
	}
	return &Mapping{Base: Base{Seed: seed}, Map: m}
}

func (s *Mapping) SampleUntilNAccepted(ctx context.Context, n int, simulate SimulateFunc, opts Options) (*domain.Sample, error) {
	call := s.nextCall()
	c := newCollector(n, opts, s.RecordRejected)
	offset := 0
	for !c.decided() && !s.isStopped() {
		batch := n - c.accepted
		if opts.MaxEval > 0 {
			batch = min(batch, opts.MaxEval-offset)
		}
		if batch <= 0 {
			break
		}
		particles := make([]domain.Particle, batch)
		err := s.Map(ctx, batch, func(ctx context.Context, j int) error {
			p, err := simulate(ctx, s.RNG(call, offset+j))
			if err != nil {
				return err
			}
			particles[j] = p
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		for j, p := range particles {
			c.add(offset+j, p, nil)
		}
		offset += batch
	}
	sample, err := c.result()
	if err != nil {
		return nil, err
	}
	return s.finish(sample, n)
}
