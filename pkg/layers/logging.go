package layers

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

// Logging emits one structured entry per operation: request id, operation,
// path, backend, duration, and on failure the error kind. Successes log at
// debug, expected misses (not found, already exists) at info, everything
// else at warn.
type Logging struct {
	logger *logrus.Logger
}

// NewLogging creates the logging layer. A nil logger falls back to the
// logrus standard logger.
func NewLogging(logger *logrus.Logger) *Logging {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Logging{logger: logger}
}

// Wrap implements Layer.
func (l *Logging) Wrap(inner accessor.Accessor) accessor.Accessor {
	return &loggingAccessor{inner: inner, logger: l.logger, backend: inner.Info().Name}
}

type loggingAccessor struct {
	inner   accessor.Accessor
	logger  *logrus.Logger
	backend string
}

func (a *loggingAccessor) Info() accessor.About { return a.inner.Info() }

func (a *loggingAccessor) begin(op accessor.Operation, path string) *logrus.Entry {
	return a.logger.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"operation":  string(op),
		"path":       path,
		"backend":    a.backend,
	})
}

func (a *loggingAccessor) finish(entry *logrus.Entry, start time.Time, err error) {
	entry = entry.WithField("duration", time.Since(start).String())
	if err == nil {
		entry.Debug("operation completed")
		return
	}
	kind := errors.ErrKind(err)
	entry = entry.WithField("error_kind", kind.String())
	switch kind {
	case errors.KindNotFound, errors.KindAlreadyExists:
		entry.Info("operation failed")
	default:
		entry.WithError(err).Warn("operation failed")
	}
}

func (a *loggingAccessor) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	entry := a.begin(accessor.OperationCreate, path)
	start := time.Now()
	err := a.inner.Create(ctx, path, args)
	a.finish(entry, start, err)
	return err
}

func (a *loggingAccessor) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	entry := a.begin(accessor.OperationRead, path)
	start := time.Now()
	r, err := a.inner.Read(ctx, path, args)
	a.finish(entry, start, err)
	return r, err
}

func (a *loggingAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	entry := a.begin(accessor.OperationWrite, path)
	start := time.Now()
	md, err := a.inner.Write(ctx, path, args, body)
	a.finish(entry, start, err)
	return md, err
}

func (a *loggingAccessor) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	entry := a.begin(accessor.OperationStat, path)
	start := time.Now()
	md, err := a.inner.Stat(ctx, path, args)
	a.finish(entry, start, err)
	return md, err
}

func (a *loggingAccessor) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	entry := a.begin(accessor.OperationDelete, path)
	start := time.Now()
	err := a.inner.Delete(ctx, path, args)
	a.finish(entry, start, err)
	return err
}

func (a *loggingAccessor) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	entry := a.begin(accessor.OperationList, path)
	start := time.Now()
	page, err := a.inner.List(ctx, path, args)
	a.finish(entry, start, err)
	return page, err
}

func (a *loggingAccessor) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	entry := a.begin(accessor.OperationCopy, src).WithField("destination", dst)
	start := time.Now()
	err := a.inner.Copy(ctx, src, dst, args)
	a.finish(entry, start, err)
	return err
}

func (a *loggingAccessor) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	entry := a.begin(accessor.OperationRename, src).WithField("destination", dst)
	start := time.Now()
	err := a.inner.Rename(ctx, src, dst, args)
	a.finish(entry, start, err)
	return err
}

func (a *loggingAccessor) Presign(ctx context.Context, path string, args accessor.OpPresign) (*accessor.PresignedRequest, error) {
	entry := a.begin(accessor.OperationPresign, path)
	start := time.Now()
	req, err := a.inner.Presign(ctx, path, args)
	a.finish(entry, start, err)
	return req, err
}
