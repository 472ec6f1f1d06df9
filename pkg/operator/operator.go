// Package operator is the caller-facing facade over one configured backend
// and its layer stack. It normalizes every path at the boundary, emulates
// copy and rename on backends that lack them natively, and exposes listing
// as a pager over opaque continuation cursors.
package operator

import (
	"bytes"
	"context"
	"io"
	"sort"
	"time"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
	"github.com/unistore/unistore/pkg/layers"
	"github.com/unistore/unistore/pkg/paths"
)

// Operator serves all user operations against one backend. The contract
// layer sits innermost so every configured layer observes capability-checked
// calls and taxonomy errors.
type Operator struct {
	accessor accessor.Accessor
	info     accessor.About
}

// New builds an Operator around backend. Layers apply in order, the first
// one closest to the backend.
func New(backend accessor.Accessor, ls ...layers.Layer) *Operator {
	base := layers.NewComplete().Wrap(backend)
	return &Operator{
		accessor: layers.Apply(base, ls...),
		info:     backend.Info(),
	}
}

// Info describes the underlying backend.
func (o *Operator) Info() accessor.About { return o.info }

// Stat returns the metadata of the object or directory at path.
func (o *Operator) Stat(ctx context.Context, path string) (*accessor.Metadata, error) {
	p, err := paths.Normalize(path)
	if err != nil {
		return nil, err
	}
	return o.accessor.Stat(ctx, p, accessor.OpStat{})
}

// Reader opens a ranged read stream. The zero range reads the whole object.
func (o *Operator) Reader(ctx context.Context, path string, rng accessor.BytesRange) (io.ReadCloser, error) {
	p, err := paths.NormalizeFile(path)
	if err != nil {
		return nil, err
	}
	return o.accessor.Read(ctx, p, accessor.OpRead{Range: rng})
}

// Read reads the whole object into memory.
func (o *Operator) Read(ctx context.Context, path string) ([]byte, error) {
	r, err := o.Reader(ctx, path, accessor.BytesRange{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ReadRange reads length bytes starting at offset. A range end past the
// object is clamped; an offset past the object fails with
// RangeNotSatisfiable.
func (o *Operator) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	r, err := o.Reader(ctx, path, accessor.BytesRange{Offset: offset, Length: length})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Write stores data at path, replacing any existing object.
func (o *Operator) Write(ctx context.Context, path string, data []byte) (*accessor.Metadata, error) {
	return o.WriteWith(ctx, path, bytes.NewReader(data), accessor.OpWrite{
		ContentLength: int64(len(data)),
	})
}

// WriteFrom streams body to path. length is -1 when unknown.
func (o *Operator) WriteFrom(ctx context.Context, path string, body io.Reader, length int64) (*accessor.Metadata, error) {
	return o.WriteWith(ctx, path, body, accessor.OpWrite{ContentLength: length})
}

// WriteWith stores body at path with explicit write arguments.
func (o *Operator) WriteWith(ctx context.Context, path string, body io.Reader, args accessor.OpWrite) (*accessor.Metadata, error) {
	p, err := paths.NormalizeFile(path)
	if err != nil {
		return nil, err
	}
	return o.accessor.Write(ctx, p, args, body)
}

// CreateDir creates a directory marker at path.
func (o *Operator) CreateDir(ctx context.Context, path string) error {
	p, err := paths.NormalizeDir(path)
	if err != nil {
		return err
	}
	return o.accessor.Create(ctx, p, accessor.OpCreate{Mode: accessor.ModeDir})
}

// Delete removes the object or directory marker at path. Deleting something
// that does not exist fails with NotFound.
func (o *Operator) Delete(ctx context.Context, path string) error {
	p, err := paths.Normalize(path)
	if err != nil {
		return err
	}
	return o.accessor.Delete(ctx, p, accessor.OpDelete{})
}

// RemoveAll deletes path and, when it is a directory, everything nested
// under it. Children delete before their parent markers, so a failure part
// way through never leaves an entry orphaned under a removed directory.
// Removing an absent path fails with NotFound.
func (o *Operator) RemoveAll(ctx context.Context, path string) error {
	p, err := paths.Normalize(path)
	if err != nil {
		return err
	}
	md, err := o.accessor.Stat(ctx, p, accessor.OpStat{})
	if err != nil {
		return err
	}
	if md.Mode() != accessor.ModeDir {
		return o.accessor.Delete(ctx, p, accessor.OpDelete{})
	}

	dir, err := paths.NormalizeDir(path)
	if err != nil {
		return err
	}
	lister, err := o.List(ctx, dir, ListOptions{Recursive: true})
	if err != nil {
		return err
	}
	entries, err := lister.All(ctx)
	if err != nil {
		return err
	}
	// Reverse-lexicographic order visits every child before its parent
	// marker. Entries already removed concurrently are not an error.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path > entries[j].Path })
	for _, e := range entries {
		if err := o.accessor.Delete(ctx, e.Path, accessor.OpDelete{}); err != nil && !errors.Is(err, errors.KindNotFound) {
			return err
		}
	}
	// The directory's own marker, when the backend stored one.
	if err := o.accessor.Delete(ctx, dir, accessor.OpDelete{}); err != nil && !errors.Is(err, errors.KindNotFound) {
		return err
	}
	return nil
}

// Copy duplicates src to dst. Backends without native copy are emulated
// with a read and a write when their capability set allows it.
func (o *Operator) Copy(ctx context.Context, src, dst string) error {
	s, err := paths.NormalizeFile(src)
	if err != nil {
		return err
	}
	d, err := paths.NormalizeFile(dst)
	if err != nil {
		return err
	}
	if s == d {
		return errors.Errorf(errors.KindInvalidInput,
			"copy source and destination are the same path %s", s)
	}

	if o.info.Capabilities.Has(accessor.CapCopy) {
		return o.accessor.Copy(ctx, s, d, accessor.OpCopy{})
	}
	if !o.info.Capabilities.Has(accessor.CapRead) || !o.info.Capabilities.Has(accessor.CapWrite) {
		return errors.Errorf(errors.KindUnsupported,
			"backend %s supports neither copy nor its read+write emulation", o.info.Scheme).
			WithOperation(string(accessor.OperationCopy)).
			WithPath(s).
			WithBackend(o.info.Name)
	}

	r, err := o.accessor.Read(ctx, s, accessor.OpRead{})
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = o.accessor.Write(ctx, d, accessor.OpWrite{ContentLength: -1}, r)
	return err
}

// Rename moves src to dst. Backends without native rename are emulated with
// copy followed by delete; the delete only runs once the copy succeeded, so
// a failed rename never loses the source.
func (o *Operator) Rename(ctx context.Context, src, dst string) error {
	s, err := paths.NormalizeFile(src)
	if err != nil {
		return err
	}
	d, err := paths.NormalizeFile(dst)
	if err != nil {
		return err
	}
	if s == d {
		return errors.Errorf(errors.KindInvalidInput,
			"rename source and destination are the same path %s", s)
	}

	if o.info.Capabilities.Has(accessor.CapRename) {
		return o.accessor.Rename(ctx, s, d, accessor.OpRename{})
	}
	if !o.info.Capabilities.Has(accessor.CapDelete) {
		return errors.Errorf(errors.KindUnsupported,
			"backend %s supports neither rename nor its copy+delete emulation", o.info.Scheme).
			WithOperation(string(accessor.OperationRename)).
			WithPath(s).
			WithBackend(o.info.Name)
	}
	if err := o.Copy(ctx, s, d); err != nil {
		return err
	}
	return o.accessor.Delete(ctx, s, accessor.OpDelete{})
}

// Presign returns a signed HTTP request for op against path, valid until
// expiry.
func (o *Operator) Presign(ctx context.Context, path string, op accessor.Operation, expiry time.Duration) (*accessor.PresignedRequest, error) {
	p, err := paths.NormalizeFile(path)
	if err != nil {
		return nil, err
	}
	return o.accessor.Presign(ctx, p, accessor.OpPresign{Operation: op, Expiry: expiry})
}

// Check verifies the backend is reachable with a one-entry root listing. An
// empty or missing root is healthy; only transport or permission failures
// surface.
func (o *Operator) Check(ctx context.Context) error {
	_, err := o.accessor.List(ctx, "/", accessor.OpList{Limit: 1})
	if err != nil && !errors.Is(err, errors.KindNotFound) {
		return err
	}
	return nil
}
