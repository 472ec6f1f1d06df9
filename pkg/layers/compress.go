package layers

import (
	"context"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

// Codec compresses write streams and decompresses read streams.
type Codec interface {
	Name() string
	Compress(w io.Writer) (io.WriteCloser, error)
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// NewCodec returns the codec registered under name: "gzip", "zstd" or "s2".
func NewCodec(name string) (Codec, error) {
	switch name {
	case "gzip":
		return gzipCodec{}, nil
	case "zstd":
		return zstdCodec{}, nil
	case "s2":
		return s2Codec{}, nil
	default:
		return nil, errors.Errorf(errors.KindInvalidInput, "unknown compression codec %q", name)
	}
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (gzipCodec) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCodec) Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

type s2Codec struct{}

func (s2Codec) Name() string { return "s2" }

func (s2Codec) Compress(w io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(w), nil
}

func (s2Codec) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}

// Compress transparently compresses bodies on write and decompresses them on
// read. Stored objects hold codec frames, so stat reports the stored size,
// not the logical one, and ranged reads are resolved against the logical
// stream by decompressing from the start.
type Compress struct {
	codec Codec
}

// NewCompress creates the compression layer.
func NewCompress(codec Codec) *Compress {
	return &Compress{codec: codec}
}

// Wrap implements Layer.
func (l *Compress) Wrap(inner accessor.Accessor) accessor.Accessor {
	return &compressAccessor{Accessor: inner, codec: l.codec}
}

// compressAccessor embeds the inner accessor so operations without a body
// pass through untouched.
type compressAccessor struct {
	accessor.Accessor
	codec Codec
}

func (a *compressAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	// The compressed length is unknown until the stream ends.
	args.ContentLength = -1

	pr, pw := io.Pipe()
	go func() {
		cw, err := a.codec.Compress(pw)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(cw, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(cw.Close())
	}()

	md, err := a.Accessor.Write(ctx, path, args, pr)
	if err != nil {
		// Unblock the compressing goroutine if the backend stopped early.
		pr.CloseWithError(err)
		return nil, err
	}
	return md, nil
}

func (a *compressAccessor) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	if err := args.Range.Validate(); err != nil {
		return nil, err
	}
	wanted := args.Range

	// Codec frames are not seekable, so the stored object is always read in
	// full and the range is applied to the logical stream.
	args.Range = accessor.BytesRange{}
	stored, err := a.Accessor.Read(ctx, path, args)
	if err != nil {
		return nil, err
	}

	logical, err := a.codec.Decompress(stored)
	if err != nil {
		stored.Close()
		return nil, errors.Errorf(errors.KindProtocolViolation,
			"stored object is not a valid %s stream", a.codec.Name()).WithCause(err)
	}

	if wanted.IsFull() {
		return &chainedCloser{Reader: logical, closers: []io.Closer{logical, stored}}, nil
	}

	if skipped, err := io.CopyN(io.Discard, logical, wanted.Offset); err != nil {
		logical.Close()
		stored.Close()
		if err == io.EOF {
			return nil, errors.Errorf(errors.KindRangeNotSatisfiable,
				"range offset %d exceeds content length %d", wanted.Offset, skipped)
		}
		return nil, err
	}

	var limited io.Reader = logical
	if wanted.Length > 0 {
		limited = io.LimitReader(logical, wanted.Length)
	}
	return &chainedCloser{Reader: limited, closers: []io.Closer{logical, stored}}, nil
}

type chainedCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *chainedCloser) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
