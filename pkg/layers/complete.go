package layers

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

// Complete enforces the contract boundary around a backend: operations
// outside the declared capability set fail with Unsupported before reaching
// the backend, malformed arguments fail with InvalidInput, and every error
// leaving the stack carries operation, path and backend context. The
// operator attaches it innermost so all other layers see a well-behaved
// accessor.
type Complete struct{}

// NewComplete returns the contract-enforcement layer.
func NewComplete() *Complete { return &Complete{} }

// Wrap implements Layer.
func (l *Complete) Wrap(inner accessor.Accessor) accessor.Accessor {
	return &completeAccessor{inner: inner, about: inner.Info()}
}

type completeAccessor struct {
	inner accessor.Accessor
	about accessor.About
}

func (a *completeAccessor) Info() accessor.About { return a.inner.Info() }

func (a *completeAccessor) check(op accessor.Operation, path string) error {
	if !a.about.Capabilities.Has(accessor.CapabilityFor(op)) {
		return errors.Errorf(errors.KindUnsupported,
			"backend %s does not support %s", a.about.Scheme, op).
			WithOperation(string(op)).
			WithPath(path).
			WithBackend(a.about.Name)
	}
	return nil
}

func (a *completeAccessor) annotate(err error, op accessor.Operation, path string) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.New(errors.KindOther, "backend returned an untranslated error").WithCause(err)
	}
	return e.WithOperation(string(op)).WithPath(path).WithBackend(a.about.Name)
}

func (a *completeAccessor) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	if err := a.check(accessor.OperationCreate, path); err != nil {
		return err
	}
	return a.annotate(a.inner.Create(ctx, path, args), accessor.OperationCreate, path)
}

func (a *completeAccessor) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	if err := a.check(accessor.OperationRead, path); err != nil {
		return nil, err
	}
	if err := args.Range.Validate(); err != nil {
		return nil, a.annotate(err, accessor.OperationRead, path)
	}
	r, err := a.inner.Read(ctx, path, args)
	return r, a.annotate(err, accessor.OperationRead, path)
}

func (a *completeAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	if err := a.check(accessor.OperationWrite, path); err != nil {
		return nil, err
	}
	if args.ContentLength < -1 {
		return nil, a.annotate(errors.Errorf(errors.KindInvalidInput,
			"content length %d is invalid", args.ContentLength), accessor.OperationWrite, path)
	}
	md, err := a.inner.Write(ctx, path, args, body)
	return md, a.annotate(err, accessor.OperationWrite, path)
}

func (a *completeAccessor) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	if err := a.check(accessor.OperationStat, path); err != nil {
		return nil, err
	}
	md, err := a.inner.Stat(ctx, path, args)
	return md, a.annotate(err, accessor.OperationStat, path)
}

func (a *completeAccessor) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	if err := a.check(accessor.OperationDelete, path); err != nil {
		return err
	}
	return a.annotate(a.inner.Delete(ctx, path, args), accessor.OperationDelete, path)
}

func (a *completeAccessor) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	if err := a.check(accessor.OperationList, path); err != nil {
		return nil, err
	}
	if args.Limit < 0 {
		return nil, a.annotate(errors.Errorf(errors.KindInvalidInput,
			"list limit %d is negative", args.Limit), accessor.OperationList, path)
	}
	page, err := a.inner.List(ctx, path, args)
	return page, a.annotate(err, accessor.OperationList, path)
}

func (a *completeAccessor) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	if err := a.check(accessor.OperationCopy, src); err != nil {
		return err
	}
	return a.annotate(a.inner.Copy(ctx, src, dst, args), accessor.OperationCopy, src)
}

func (a *completeAccessor) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	if err := a.check(accessor.OperationRename, src); err != nil {
		return err
	}
	return a.annotate(a.inner.Rename(ctx, src, dst, args), accessor.OperationRename, src)
}

func (a *completeAccessor) Presign(ctx context.Context, path string, args accessor.OpPresign) (*accessor.PresignedRequest, error) {
	if err := a.check(accessor.OperationPresign, path); err != nil {
		return nil, err
	}
	switch args.Operation {
	case accessor.OperationRead, accessor.OperationWrite, accessor.OperationStat:
	default:
		return nil, a.annotate(errors.Errorf(errors.KindInvalidInput,
			"operation %s cannot be presigned", args.Operation), accessor.OperationPresign, path)
	}
	req, err := a.inner.Presign(ctx, path, args)
	return req, a.annotate(err, accessor.OperationPresign, path)
}
