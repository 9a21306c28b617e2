package sampler

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// Parallel evaluates proposals on a fixed number of goroutines with dynamic
// scheduling. Evaluations past the deciding index are discarded.
type Parallel struct {
	Base
	Workers int
}

func NewParallel(seed uint64, workers int) *Parallel {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Parallel{Base: Base{Seed: seed}, Workers: workers}
}

func (s *Parallel) SampleUntilNAccepted(ctx context.Context, n int, simulate SimulateFunc, opts Options) (*domain.Sample, error) {
	call := s.nextCall()
	c := newCollector(n, opts, s.RecordRejected)
	if c.decided() {
		sample, _ := c.result()
		return s.finish(sample, n)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu   sync.Mutex
		next int
	)
	claim := func() (int, bool) {
		mu.Lock()
		defer mu.Unlock()
		if c.decided() || s.isStopped() || wctx.Err() != nil {
			return 0, false
		}
		if opts.MaxEval > 0 && next >= opts.MaxEval {
			return 0, false
		}
		i := next
		next++
		return i, true
	}
	complete := func(i int, p domain.Particle, err error) {
		mu.Lock()
		defer mu.Unlock()
		if c.add(i, p, err) {
			cancel()
		}
	}

	g := new(errgroup.Group)
	for w := 0; w < s.Workers; w++ {
		g.Go(func() error {
			for {
				i, ok := claim()
				if !ok {
					return nil
				}
				p, err := simulate(wctx, s.RNG(call, i))
				complete(i, p, err)
			}
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger().Debug("parallel sampling finished",
		zap.Int("workers", s.Workers),
		zap.Int("claimed", next),
		zap.Int("used", c.prefix))
	sample, err := c.result()
	if err != nil {
		return nil, err
	}
	return s.finish(sample, n)
}
