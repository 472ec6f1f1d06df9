// Package fs implements a backend over a directory tree. All access goes
// through an afero filesystem, so tests run against an in-memory tree and
// production mounts a real directory root.
package fs

import (
	"context"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
	"github.com/unistore/unistore/pkg/paths"
)

const defaultPageSize = 1000

// Backend serves the contract from a directory tree.
type Backend struct {
	accessor.Unimplemented

	name string
	fs   afero.Fs
	root string
}

// New mounts the directory at root on the local filesystem.
func New(name, root string) *Backend {
	return NewWithFs(name, root, afero.NewBasePathFs(afero.NewOsFs(), root))
}

// NewWithFs mounts an explicit afero filesystem, used by tests.
func NewWithFs(name, root string, afs afero.Fs) *Backend {
	if name == "" {
		name = "fs"
	}
	return &Backend{name: name, fs: afs, root: root}
}

// Info implements accessor.Accessor.
func (b *Backend) Info() accessor.About {
	return accessor.About{
		Scheme: "fs",
		Name:   b.name,
		Root:   b.root,
		Capabilities: accessor.CapCreate | accessor.CapRead | accessor.CapWrite |
			accessor.CapStat | accessor.CapDelete | accessor.CapList |
			accessor.CapCopy | accessor.CapRename,
	}
}

// translate maps filesystem errors onto the taxonomy.
func translate(err error, path string) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return errors.Errorf(errors.KindNotFound, "%s does not exist", path).WithCause(err)
	case os.IsExist(err):
		return errors.Errorf(errors.KindAlreadyExists, "%s already exists", path).WithCause(err)
	case os.IsPermission(err):
		return errors.Errorf(errors.KindPermissionDenied, "access to %s denied", path).WithCause(err)
	default:
		return errors.New(errors.KindOther, "filesystem operation failed").
			WithPath(path).
			WithCause(err)
	}
}

// fsPath maps a contract path onto the mounted tree.
func fsPath(p string) string {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
	if trimmed == "" {
		return "."
	}
	return trimmed
}

func metadataFromInfo(info iofs.FileInfo) *accessor.Metadata {
	if info.IsDir() {
		return accessor.NewMetadata(accessor.ModeDir).WithLastModified(info.ModTime())
	}
	return accessor.NewMetadata(accessor.ModeFile).
		WithContentLength(info.Size()).
		WithLastModified(info.ModTime())
}

func (b *Backend) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	fp := fsPath(path)
	if args.Mode == accessor.ModeDir || paths.IsDir(path) {
		return translate(b.fs.MkdirAll(fp, 0o755), path)
	}
	if err := b.fs.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return translate(err, path)
	}
	f, err := b.fs.OpenFile(fp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return translate(err, path)
	}
	return translate(f.Close(), path)
}

func (b *Backend) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	fp := fsPath(path)
	f, err := b.fs.Open(fp)
	if err != nil {
		return nil, translate(err, path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, translate(err, path)
	}

	offset, length, err := args.Range.Clamp(info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, translate(err, path)
		}
	}
	return &limitedFile{Reader: io.LimitReader(f, length), file: f}, nil
}

type limitedFile struct {
	io.Reader
	file afero.File
}

func (l *limitedFile) Close() error { return l.file.Close() }

func (b *Backend) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	fp := fsPath(path)
	if err := b.fs.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return nil, translate(err, path)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if args.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := b.fs.OpenFile(fp, flags, 0o644)
	if err != nil {
		return nil, translate(err, path)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return nil, translate(err, path)
	}
	if err := f.Close(); err != nil {
		return nil, translate(err, path)
	}

	info, err := b.fs.Stat(fp)
	if err != nil {
		return nil, translate(err, path)
	}
	md := metadataFromInfo(info)
	if args.ContentType != "" {
		md = md.WithContentType(args.ContentType)
	}
	return md, nil
}

func (b *Backend) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	info, err := b.fs.Stat(fsPath(path))
	if err != nil {
		return nil, translate(err, path)
	}
	if paths.IsDir(path) && !info.IsDir() {
		return nil, errors.Errorf(errors.KindNotFound, "%s is not a directory", path)
	}
	return metadataFromInfo(info), nil
}

func (b *Backend) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	return translate(b.fs.Remove(fsPath(path)), path)
}

func (b *Backend) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	if args.Limit < 0 {
		return nil, errors.Errorf(errors.KindInvalidInput, "list limit %d must not be negative", args.Limit)
	}
	limit := args.Limit
	if limit == 0 {
		limit = defaultPageSize
	}

	dir := path
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	var entries []accessor.Entry
	var err error
	if args.Delimiter == "" {
		entries, err = b.walk(dir)
	} else {
		entries, err = b.readDir(dir)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	start := 0
	if args.Cursor != "" {
		start = sort.Search(len(entries), func(i int) bool {
			return entries[i].Path > args.Cursor
		})
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	page := &accessor.ListPage{Entries: entries[start:end]}
	if end < len(entries) {
		page.Cursor = entries[end-1].Path
	}
	return page, nil
}

func (b *Backend) readDir(dir string) ([]accessor.Entry, error) {
	infos, err := afero.ReadDir(b.fs, fsPath(dir))
	if err != nil {
		return nil, translate(err, dir)
	}
	entries := make([]accessor.Entry, 0, len(infos))
	for _, info := range infos {
		p := dir + info.Name()
		if info.IsDir() {
			p += "/"
		}
		entries = append(entries, accessor.Entry{Path: p, Metadata: metadataFromInfo(info)})
	}
	return entries, nil
}

func (b *Backend) walk(dir string) ([]accessor.Entry, error) {
	var entries []accessor.Entry
	root := fsPath(dir)
	err := afero.Walk(b.fs, root, func(p string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if rel == "" {
			// The listed directory itself is not one of its entries.
			return nil
		}
		entry := accessor.Entry{Path: dir + rel, Metadata: metadataFromInfo(info)}
		if info.IsDir() {
			entry.Path += "/"
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, translate(err, dir)
	}
	return entries, nil
}

func (b *Backend) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	r, err := b.Read(ctx, src, accessor.OpRead{})
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = b.Write(ctx, dst, accessor.OpWrite{ContentLength: -1}, r)
	return err
}

func (b *Backend) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	dstPath := fsPath(dst)
	if err := b.fs.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return translate(err, dst)
	}
	return translate(b.fs.Rename(fsPath(src), dstPath), src)
}
