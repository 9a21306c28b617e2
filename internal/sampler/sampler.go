// Package sampler draws particles until a requested number is accepted.
//
// Every evaluation of a sampling call gets its own random generator derived
// from (seed, call, index). Implementations keep the accepted particles with
// the lowest evaluation indices, so the returned sample does not depend on how
// evaluations were scheduled.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
)

// SimulateFunc evaluates one proposal and reports whether it was accepted.
type SimulateFunc func(ctx context.Context, rng *rand.Rand) (domain.Particle, error)

// Options tune a single sampling call.
type Options struct {
	// MaxEval stops sampling after this many evaluations. Zero means no limit.
	MaxEval int
	// AllAccepted marks every evaluated particle as accepted, as done for the
	// prior sample.
	AllAccepted bool
}

// Sampler is the contract the inference loop samples through.
type Sampler interface {
	SampleUntilNAccepted(ctx context.Context, n int, simulate SimulateFunc, opts Options) (*domain.Sample, error)
	// NrEvaluations is the number of evaluations of the last sampling call.
	NrEvaluations() int
	SetAnalysisID(id string)
	AnalysisID() string
	// Stop makes running and future calls return early with Ok=false.
	Stop()
}

// ErrInvalidSample is returned when a sampler produces an inconsistent sample.
var ErrInvalidSample = errors.New("invalid sample")

// Base holds the state shared by all samplers.
type Base struct {
	Seed uint64
	// RecordRejected keeps rejected particles in the returned sample.
	RecordRejected bool
	Logger         *zap.Logger

	mu            sync.Mutex
	calls         uint64
	nrEvaluations int
	analysisID    string
	stopped       atomic.Bool
}

func (b *Base) NrEvaluations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nrEvaluations
}

func (b *Base) SetAnalysisID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analysisID = id
}

func (b *Base) AnalysisID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.analysisID
}

func (b *Base) Stop() {
	b.stopped.Store(true)
}

func (b *Base) isStopped() bool {
	return b.stopped.Load()
}

func (b *Base) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// nextCall reserves the index of a new sampling call.
func (b *Base) nextCall() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.calls
	b.calls++
	return c
}

// RNG returns the generator of evaluation index of sampling call call.
func (b *Base) RNG(call uint64, index int) *rand.Rand {
	hi := splitmix(b.Seed ^ splitmix(call))
	lo := splitmix(hi ^ uint64(index))
	return rand.New(rand.NewPCG(hi, lo))
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// finish validates the sample, normalizes its weights and records the
// evaluation count.
func (b *Base) finish(sample *domain.Sample, n int) (*domain.Sample, error) {
	b.mu.Lock()
	b.nrEvaluations = sample.NrEvaluations
	b.mu.Unlock()

	if err := Validate(sample, n); err != nil {
		return nil, err
	}
	if err := sample.NormalizeWeights(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	b.logger().Debug("sample complete",
		zap.Int("accepted", sample.NAccepted()),
		zap.Int("evaluations", sample.NrEvaluations),
		zap.Bool("ok", sample.Ok))
	return sample, nil
}

// Validate checks that a sample satisfies the sampler contract.
func Validate(sample *domain.Sample, n int) error {
	if sample == nil {
		return fmt.Errorf("%w: nil sample", ErrInvalidSample)
	}
	if sample.Ok && sample.NAccepted() != n {
		return fmt.Errorf("%w: expected %d accepted particles, got %d", ErrInvalidSample, n, sample.NAccepted())
	}
	for i, p := range sample.Particles {
		if p.Preliminary {
			return fmt.Errorf("%w: particle %d is preliminary", ErrInvalidSample, i)
		}
	}
	return nil
}

// collector accumulates evaluation results in index order and decides when
// the n lowest-index acceptances are known.
type collector struct {
	n              int
	allAccepted    bool
	recordRejected bool

	results  map[int]domain.Particle
	errs     map[int]error
	prefix   int
	accepted int
	sample   domain.Sample
	err      error
}

func newCollector(n int, opts Options, recordRejected bool) *collector {
	return &collector{
		n:              n,
		allAccepted:    opts.AllAccepted,
		recordRejected: recordRejected,
		results:        map[int]domain.Particle{},
		errs:           map[int]error{},
	}
}

// add records the outcome of evaluation i and reports whether the sample is
// decided, either complete or failed.
func (c *collector) add(i int, p domain.Particle, err error) bool {
	if c.decided() {
		return true
	}
	if err != nil {
		c.errs[i] = err
	} else {
		c.results[i] = p
	}
	for !c.decided() {
		if err, ok := c.errs[c.prefix]; ok {
			c.err = fmt.Errorf("failed to evaluate particle %d: %w", c.prefix, err)
			break
		}
		p, ok := c.results[c.prefix]
		if !ok {
			break
		}
		delete(c.results, c.prefix)
		c.prefix++
		c.sample.NrEvaluations++
		if c.allAccepted {
			p.Accepted = true
		}
		if p.Accepted {
			c.accepted++
			c.sample.Particles = append(c.sample.Particles, p)
		} else if c.recordRejected {
			c.sample.Particles = append(c.sample.Particles, p)
		}
	}
	return c.decided()
}

func (c *collector) decided() bool {
	return c.err != nil || c.accepted >= c.n
}

func (c *collector) result() (*domain.Sample, error) {
	if c.err != nil {
		return nil, c.err
	}
	s := c.sample
	s.Ok = c.accepted >= c.n
	return &s, nil
}
