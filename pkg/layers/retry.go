package layers

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
	"github.com/unistore/unistore/pkg/retry"
)

// RetryConfig configures the retry layer.
type RetryConfig struct {
	Backoff retry.Config `yaml:",inline"`

	// OnRetry is called before each backoff wait, with the delay that will
	// be slept. Used for logging and tests.
	OnRetry func(op accessor.Operation, attempt int, err error, delay time.Duration) `yaml:"-"`
}

// Retry re-issues failed operations with exponential backoff.
//
// Classification: idempotent operations (stat, read, delete, list, presign)
// are retried on any Retryable failure. Non-idempotent operations (create,
// write, copy, rename) are retried only when the backend marked the failure
// SafeToRetry, meaning the attempt is guaranteed to have had no partial side
// effect. A write whose body was already partially consumed is never
// retried, whatever the backend says, because the consumed bytes cannot be
// replayed at this layer.
//
// Once the attempt budget is exhausted the last error is wrapped in
// RetriesExhausted. Cancellation stops further attempts immediately.
type Retry struct {
	config RetryConfig
}

// NewRetry creates the retry layer.
func NewRetry(config RetryConfig) *Retry {
	return &Retry{config: config}
}

// Wrap implements Layer.
func (l *Retry) Wrap(inner accessor.Accessor) accessor.Accessor {
	return &retryAccessor{
		inner:   inner,
		backoff: retry.New(l.config.Backoff),
		onRetry: l.config.OnRetry,
	}
}

type retryAccessor struct {
	inner   accessor.Accessor
	backoff *retry.Backoff
	onRetry func(op accessor.Operation, attempt int, err error, delay time.Duration)
}

func (a *retryAccessor) Info() accessor.About { return a.inner.Info() }

// retriable decides whether err is worth another attempt of op.
func retriable(op accessor.Operation, err error) bool {
	if op.IsIdempotent() {
		return errors.Is(err, errors.KindRetryable)
	}
	return errors.IsSafeToRetry(err)
}

// do runs fn until it succeeds, fails terminally, or the attempt budget runs
// out. extraGate, when non-nil, can veto a retry that classification alone
// would allow.
func (a *retryAccessor) do(ctx context.Context, op accessor.Operation, extraGate func() bool, fn func() error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return errors.New(errors.KindOther, "operation canceled").WithCause(ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retriable(op, err) || (extraGate != nil && !extraGate()) {
			return err
		}
		if attempt >= a.backoff.MaxAttempts() {
			return errors.Errorf(errors.KindRetriesExhausted,
				"giving up after %d attempts", attempt).WithCause(lastErr)
		}

		delay := a.backoff.Delay(attempt)
		if a.onRetry != nil {
			a.onRetry(op, attempt, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

func (a *retryAccessor) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	return a.do(ctx, accessor.OperationCreate, nil, func() error {
		return a.inner.Create(ctx, path, args)
	})
}

func (a *retryAccessor) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	var r io.ReadCloser
	err := a.do(ctx, accessor.OperationRead, nil, func() error {
		var err error
		r, err = a.inner.Read(ctx, path, args)
		return err
	})
	return r, err
}

func (a *retryAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	counted := &countingReader{r: body}
	var md *accessor.Metadata
	err := a.do(ctx, accessor.OperationWrite, counted.untouched, func() error {
		var err error
		md, err = a.inner.Write(ctx, path, args, counted)
		return err
	})
	return md, err
}

func (a *retryAccessor) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	var md *accessor.Metadata
	err := a.do(ctx, accessor.OperationStat, nil, func() error {
		var err error
		md, err = a.inner.Stat(ctx, path, args)
		return err
	})
	return md, err
}

func (a *retryAccessor) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	return a.do(ctx, accessor.OperationDelete, nil, func() error {
		return a.inner.Delete(ctx, path, args)
	})
}

func (a *retryAccessor) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	var page *accessor.ListPage
	err := a.do(ctx, accessor.OperationList, nil, func() error {
		var err error
		page, err = a.inner.List(ctx, path, args)
		return err
	})
	return page, err
}

func (a *retryAccessor) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	return a.do(ctx, accessor.OperationCopy, nil, func() error {
		return a.inner.Copy(ctx, src, dst, args)
	})
}

func (a *retryAccessor) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	return a.do(ctx, accessor.OperationRename, nil, func() error {
		return a.inner.Rename(ctx, src, dst, args)
	})
}

func (a *retryAccessor) Presign(ctx context.Context, path string, args accessor.OpPresign) (*accessor.PresignedRequest, error) {
	var req *accessor.PresignedRequest
	err := a.do(ctx, accessor.OperationPresign, nil, func() error {
		var err error
		req, err = a.inner.Presign(ctx, path, args)
		return err
	})
	return req, err
}

// countingReader tracks whether any byte of a write body was consumed.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) untouched() bool { return c.n.Load() == 0 }
