// Package accessor defines the capability contract every storage backend
// implements and every layer wraps: one entry point per operation category,
// each taking a normalized path and an immutable argument bundle, returning a
// typed result or a taxonomy error.
//
// Contract rules:
//
//   - Paths arrive pre-normalized (see package paths); backends never
//     re-interpret them.
//   - An operation outside the declared capability set fails with
//     Unsupported, never a silent no-op.
//   - Side effects are exactly those the operation describes; caching and
//     prefetching belong to layers, not backends.
package accessor

import (
	"context"
	"io"

	"github.com/unistore/unistore/pkg/errors"
)

// About identifies a backend instance. It is fixed at construction.
type About struct {
	// Scheme names the backend type, e.g. "memory", "fs", "bolt", "s3".
	Scheme string
	// Name is the backend namespace, e.g. an S3 bucket or a database file.
	// May be empty when the backend has no namespace concept.
	Name string
	// Root is the directory all operations are scoped under, in normalized
	// directory form.
	Root string
	// Capabilities is the set of natively supported operations.
	Capabilities Capability
}

// Accessor is the capability contract. Implementations must be safe for
// concurrent use; every method may block on I/O and must honor ctx
// cancellation, releasing any acquired resource when the caller abandons the
// call.
type Accessor interface {
	// Info returns the backend identity. It never fails and performs no I/O.
	Info() About

	// Create makes an empty file or a directory marker at path.
	Create(ctx context.Context, path string, args OpCreate) error

	// Read opens a forward-only byte stream over path. The stream is finite
	// and not restartable; re-reading requires a fresh call. Range semantics
	// follow BytesRange.Clamp.
	Read(ctx context.Context, path string, args OpRead) (io.ReadCloser, error)

	// Write stores the bytes read from body at path, replacing any previous
	// content, and reports the resulting metadata.
	Write(ctx context.Context, path string, args OpWrite, body io.Reader) (*Metadata, error)

	// Stat returns the metadata snapshot for path.
	Stat(ctx context.Context, path string, args OpStat) (*Metadata, error)

	// Delete removes path. Deleting an absent path fails with NotFound.
	Delete(ctx context.Context, path string, args OpDelete) error

	// List returns one page of entries under the directory path together
	// with an opaque continuation cursor.
	List(ctx context.Context, path string, args OpList) (*ListPage, error)

	// Copy duplicates src to dst.
	Copy(ctx context.Context, src, dst string, args OpCopy) error

	// Rename moves src to dst.
	Rename(ctx context.Context, src, dst string, args OpRename) error

	// Presign produces a signed request a third party can execute.
	Presign(ctx context.Context, path string, args OpPresign) (*PresignedRequest, error)
}

// Unimplemented fails every operation with Unsupported. Backends embed it so
// they only implement the operations in their capability set.
type Unimplemented struct{}

func unsupported(op Operation) error {
	return errors.Errorf(errors.KindUnsupported, "operation %s is not supported", op)
}

func (Unimplemented) Create(context.Context, string, OpCreate) error {
	return unsupported(OperationCreate)
}

func (Unimplemented) Read(context.Context, string, OpRead) (io.ReadCloser, error) {
	return nil, unsupported(OperationRead)
}

func (Unimplemented) Write(context.Context, string, OpWrite, io.Reader) (*Metadata, error) {
	return nil, unsupported(OperationWrite)
}

func (Unimplemented) Stat(context.Context, string, OpStat) (*Metadata, error) {
	return nil, unsupported(OperationStat)
}

func (Unimplemented) Delete(context.Context, string, OpDelete) error {
	return unsupported(OperationDelete)
}

func (Unimplemented) List(context.Context, string, OpList) (*ListPage, error) {
	return nil, unsupported(OperationList)
}

func (Unimplemented) Copy(context.Context, string, string, OpCopy) error {
	return unsupported(OperationCopy)
}

func (Unimplemented) Rename(context.Context, string, string, OpRename) error {
	return unsupported(OperationRename)
}

func (Unimplemented) Presign(context.Context, string, OpPresign) (*PresignedRequest, error) {
	return nil, unsupported(OperationPresign)
}
