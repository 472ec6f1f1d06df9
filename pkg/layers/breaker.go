package layers

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

// BreakerState is the circuit state.
type BreakerState int

const (
	// BreakerClosed passes requests through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests without touching the backend.
	BreakerOpen
	// BreakerHalfOpen lets a limited number of probes through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker layer.
type BreakerConfig struct {
	// MaxProbes bounds the requests allowed through while half-open.
	MaxProbes uint32 `yaml:"max_probes"`

	// Interval is the closed-state window after which counts reset.
	Interval time.Duration `yaml:"interval"`

	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration `yaml:"cooldown"`

	// ReadyToTrip decides, from the current counts, whether to open the
	// circuit. The default trips at 50% failures over at least 20 requests.
	ReadyToTrip func(counts BreakerCounts) bool `yaml:"-"`

	// OnStateChange is called on every transition.
	OnStateChange func(backend string, from, to BreakerState) `yaml:"-"`
}

// BreakerCounts tracks request outcomes inside one window.
type BreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *BreakerCounts) onRequest() { c.Requests++ }

func (c *BreakerCounts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *BreakerCounts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker stops hammering a backend that keeps failing. Only infrastructure
// failures trip it: a NotFound or InvalidInput is the backend working as
// intended, not a reason to open the circuit. While open, calls are rejected
// with a Retryable, SafeToRetry error so the retry layer above it can keep
// scheduling without side effects.
type Breaker struct {
	config BreakerConfig
}

// NewBreaker creates the circuit breaker layer.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxProbes == 0 {
		config.MaxProbes = 1
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = func(counts BreakerCounts) bool {
			return counts.Requests >= 20 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		}
	}
	return &Breaker{config: config}
}

// Wrap implements Layer.
func (l *Breaker) Wrap(inner accessor.Accessor) accessor.Accessor {
	a := &breakerAccessor{
		inner:   inner,
		config:  l.config,
		backend: inner.Info().Name,
		state:   BreakerClosed,
	}
	a.expiry = time.Now().Add(l.config.Interval)
	return a
}

type breakerAccessor struct {
	inner   accessor.Accessor
	config  BreakerConfig
	backend string

	mu     sync.Mutex
	state  BreakerState
	counts BreakerCounts
	expiry time.Time
}

// countsAsFailure reports whether err indicates backend trouble rather than
// a legitimate negative answer.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch errors.ErrKind(err) {
	case errors.KindNotFound, errors.KindAlreadyExists, errors.KindInvalidInput,
		errors.KindRangeNotSatisfiable, errors.KindUnsupported:
		return false
	}
	return true
}

func (a *breakerAccessor) before() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	state := a.currentState(now)

	if state == BreakerOpen {
		return errors.New(errors.KindRetryable, "circuit breaker is open").
			WithBackend(a.backend).
			WithContext("state", state.String()).
			SetSafeToRetry()
	}
	if state == BreakerHalfOpen && a.counts.Requests >= a.config.MaxProbes {
		return errors.New(errors.KindRetryable, "too many probes while half-open").
			WithBackend(a.backend).
			WithContext("state", state.String()).
			SetSafeToRetry()
	}

	a.counts.onRequest()
	return nil
}

func (a *breakerAccessor) after(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	state := a.currentState(now)

	if !countsAsFailure(err) {
		a.counts.onSuccess()
		if state == BreakerHalfOpen {
			a.setState(BreakerClosed, now)
		}
		return
	}

	a.counts.onFailure()
	switch state {
	case BreakerClosed:
		if a.config.ReadyToTrip(a.counts) {
			a.setState(BreakerOpen, now)
		}
	case BreakerHalfOpen:
		a.setState(BreakerOpen, now)
	}
}

// currentState applies window expiry. Callers hold a.mu.
func (a *breakerAccessor) currentState(now time.Time) BreakerState {
	switch a.state {
	case BreakerClosed:
		if !a.expiry.IsZero() && a.expiry.Before(now) {
			a.counts = BreakerCounts{}
			a.expiry = now.Add(a.config.Interval)
		}
	case BreakerOpen:
		if a.expiry.Before(now) {
			a.setState(BreakerHalfOpen, now)
		}
	}
	return a.state
}

// setState transitions and resets counts. Callers hold a.mu.
func (a *breakerAccessor) setState(state BreakerState, now time.Time) {
	if a.state == state {
		return
	}
	prev := a.state
	a.state = state
	a.counts = BreakerCounts{}

	switch state {
	case BreakerClosed:
		a.expiry = now.Add(a.config.Interval)
	case BreakerOpen:
		a.expiry = now.Add(a.config.Cooldown)
	case BreakerHalfOpen:
		a.expiry = time.Time{}
	}

	if a.config.OnStateChange != nil {
		a.config.OnStateChange(a.backend, prev, state)
	}
}

func (a *breakerAccessor) execute(fn func() error) error {
	if err := a.before(); err != nil {
		return err
	}
	err := fn()
	a.after(err)
	return err
}

func (a *breakerAccessor) Info() accessor.About { return a.inner.Info() }

func (a *breakerAccessor) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	return a.execute(func() error { return a.inner.Create(ctx, path, args) })
}

func (a *breakerAccessor) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	var r io.ReadCloser
	err := a.execute(func() error {
		var err error
		r, err = a.inner.Read(ctx, path, args)
		return err
	})
	return r, err
}

func (a *breakerAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	var md *accessor.Metadata
	err := a.execute(func() error {
		var err error
		md, err = a.inner.Write(ctx, path, args, body)
		return err
	})
	return md, err
}

func (a *breakerAccessor) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	var md *accessor.Metadata
	err := a.execute(func() error {
		var err error
		md, err = a.inner.Stat(ctx, path, args)
		return err
	})
	return md, err
}

func (a *breakerAccessor) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	return a.execute(func() error { return a.inner.Delete(ctx, path, args) })
}

func (a *breakerAccessor) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	var page *accessor.ListPage
	err := a.execute(func() error {
		var err error
		page, err = a.inner.List(ctx, path, args)
		return err
	})
	return page, err
}

func (a *breakerAccessor) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	return a.execute(func() error { return a.inner.Copy(ctx, src, dst, args) })
}

func (a *breakerAccessor) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	return a.execute(func() error { return a.inner.Rename(ctx, src, dst, args) })
}

func (a *breakerAccessor) Presign(ctx context.Context, path string, args accessor.OpPresign) (*accessor.PresignedRequest, error) {
	var req *accessor.PresignedRequest
	err := a.execute(func() error {
		var err error
		req, err = a.inner.Presign(ctx, path, args)
		return err
	})
	return req, err
}
