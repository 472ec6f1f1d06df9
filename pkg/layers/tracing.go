package layers

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

const tracerName = "github.com/unistore/unistore"

// Tracing opens one span per operation, carrying the operation name, path,
// and backend as attributes. Failures are recorded on the span with their
// taxonomy kind.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing creates the tracing layer. A nil provider falls back to the
// global one.
func NewTracing(provider trace.TracerProvider) *Tracing {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracing{tracer: provider.Tracer(tracerName)}
}

// Wrap implements Layer.
func (l *Tracing) Wrap(inner accessor.Accessor) accessor.Accessor {
	return &tracingAccessor{inner: inner, tracer: l.tracer, backend: inner.Info().Name}
}

type tracingAccessor struct {
	inner   accessor.Accessor
	tracer  trace.Tracer
	backend string
}

func (a *tracingAccessor) Info() accessor.About { return a.inner.Info() }

func (a *tracingAccessor) start(ctx context.Context, op accessor.Operation, path string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "unistore."+string(op),
		trace.WithAttributes(
			attribute.String("unistore.operation", string(op)),
			attribute.String("unistore.path", path),
			attribute.String("unistore.backend", a.backend),
		))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("unistore.error_kind", errors.ErrKind(err).String()))
		span.SetStatus(codes.Error, errors.ErrKind(err).String())
	}
	span.End()
}

func (a *tracingAccessor) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	ctx, span := a.start(ctx, accessor.OperationCreate, path)
	err := a.inner.Create(ctx, path, args)
	end(span, err)
	return err
}

func (a *tracingAccessor) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	ctx, span := a.start(ctx, accessor.OperationRead, path)
	r, err := a.inner.Read(ctx, path, args)
	end(span, err)
	return r, err
}

func (a *tracingAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	ctx, span := a.start(ctx, accessor.OperationWrite, path)
	md, err := a.inner.Write(ctx, path, args, body)
	end(span, err)
	return md, err
}

func (a *tracingAccessor) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	ctx, span := a.start(ctx, accessor.OperationStat, path)
	md, err := a.inner.Stat(ctx, path, args)
	end(span, err)
	return md, err
}

func (a *tracingAccessor) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	ctx, span := a.start(ctx, accessor.OperationDelete, path)
	err := a.inner.Delete(ctx, path, args)
	end(span, err)
	return err
}

func (a *tracingAccessor) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	ctx, span := a.start(ctx, accessor.OperationList, path)
	page, err := a.inner.List(ctx, path, args)
	end(span, err)
	return page, err
}

func (a *tracingAccessor) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	ctx, span := a.start(ctx, accessor.OperationCopy, src)
	span.SetAttributes(attribute.String("unistore.destination", dst))
	err := a.inner.Copy(ctx, src, dst, args)
	end(span, err)
	return err
}

func (a *tracingAccessor) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	ctx, span := a.start(ctx, accessor.OperationRename, src)
	span.SetAttributes(attribute.String("unistore.destination", dst))
	err := a.inner.Rename(ctx, src, dst, args)
	end(span, err)
	return err
}

func (a *tracingAccessor) Presign(ctx context.Context, path string, args accessor.OpPresign) (*accessor.PresignedRequest, error) {
	ctx, span := a.start(ctx, accessor.OperationPresign, path)
	req, err := a.inner.Presign(ctx, path, args)
	end(span, err)
	return req, err
}
