// Package memory implements an in-process backend holding objects in a map.
// It exists for tests, for layer development, and as the reference for what
// the contract's semantics look like when nothing can fail underneath.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

const defaultPageSize = 1000

type object struct {
	data     []byte
	metadata *accessor.Metadata
}

// Backend is the in-memory accessor. The zero value is not usable; call New.
type Backend struct {
	accessor.Unimplemented

	name string

	mu      sync.RWMutex
	objects map[string]*object
}

// New creates an empty in-memory backend.
func New(name string) *Backend {
	if name == "" {
		name = "memory"
	}
	return &Backend{
		name:    name,
		objects: make(map[string]*object),
	}
}

// Info implements accessor.Accessor.
func (b *Backend) Info() accessor.About {
	return accessor.About{
		Scheme: "memory",
		Name:   b.name,
		Root:   "/",
		Capabilities: accessor.CapCreate | accessor.CapRead | accessor.CapWrite |
			accessor.CapStat | accessor.CapDelete | accessor.CapList |
			accessor.CapCopy | accessor.CapRename,
	}
}

func (b *Backend) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	mode := args.Mode
	if mode == accessor.ModeUnknown {
		mode = accessor.ModeFile
	}
	if _, ok := b.objects[path]; ok {
		return errors.Errorf(errors.KindAlreadyExists, "%s already exists", path)
	}
	b.objects[path] = &object{
		metadata: accessor.NewMetadata(mode).
			WithContentLength(0).
			WithLastModified(time.Now()),
	}
	return nil
}

func (b *Backend) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	b.mu.RLock()
	obj, ok := b.objects[path]
	b.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf(errors.KindNotFound, "%s does not exist", path)
	}

	offset, length, err := args.Range.Clamp(int64(len(obj.data)))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(obj.data[offset : offset+length])), nil
}

func (b *Backend) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.New(errors.KindOther, "reading write body").WithCause(err)
	}

	sum := md5.Sum(data)
	md := accessor.NewMetadata(accessor.ModeFile).
		WithContentLength(int64(len(data))).
		WithLastModified(time.Now()).
		WithETag(hex.EncodeToString(sum[:]))
	if args.ContentType != "" {
		md = md.WithContentType(args.ContentType)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if args.Append {
		if prev, ok := b.objects[path]; ok {
			data = append(append([]byte(nil), prev.data...), data...)
			sum = md5.Sum(data)
			md = md.WithContentLength(int64(len(data))).WithETag(hex.EncodeToString(sum[:]))
		}
	}
	b.objects[path] = &object{data: data, metadata: md}
	return md.Clone(), nil
}

func (b *Backend) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if obj, ok := b.objects[path]; ok {
		return obj.metadata.Clone(), nil
	}
	// A directory exists when anything lives under it, marker or not.
	dir := path
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	if dir == "/" {
		return accessor.NewMetadata(accessor.ModeDir), nil
	}
	for key := range b.objects {
		if strings.HasPrefix(key, dir) {
			return accessor.NewMetadata(accessor.ModeDir), nil
		}
	}
	return nil, errors.Errorf(errors.KindNotFound, "%s does not exist", path)
}

func (b *Backend) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[path]; !ok {
		return errors.Errorf(errors.KindNotFound, "%s does not exist", path)
	}
	delete(b.objects, path)
	return nil
}

func (b *Backend) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	if args.Limit < 0 {
		return nil, errors.Errorf(errors.KindInvalidInput, "list limit %d must not be negative", args.Limit)
	}
	limit := args.Limit
	if limit == 0 {
		limit = defaultPageSize
	}

	b.mu.RLock()
	children := b.collect(path, args.Delimiter)
	b.mu.RUnlock()

	// The cursor is the path of the last emitted entry; resume strictly
	// after it. Rebuilding the sorted view every page keeps the cursor
	// valid across concurrent writes.
	start := 0
	if args.Cursor != "" {
		start = sort.Search(len(children), func(i int) bool {
			return children[i].Path > args.Cursor
		})
	}

	end := start + limit
	if end > len(children) {
		end = len(children)
	}
	page := &accessor.ListPage{Entries: children[start:end]}
	if end < len(children) {
		page.Cursor = children[end-1].Path
	}
	return page, nil
}

// collect builds the sorted listing of path. Callers hold b.mu.
func (b *Backend) collect(dir, delimiter string) []accessor.Entry {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	seen := make(map[string]*accessor.Metadata)
	for key, obj := range b.objects {
		if !strings.HasPrefix(key, dir) || key == dir {
			continue
		}
		rest := strings.TrimPrefix(key, dir)

		if delimiter != "" {
			// A delimiter before the end means a deeper key; synthesize the
			// intermediate directory entry. A trailing delimiter is the
			// child's own marker and keeps its stored record.
			if i := strings.Index(rest, delimiter); i >= 0 && i < len(rest)-1 {
				child := dir + rest[:i+1]
				if _, ok := seen[child]; !ok {
					seen[child] = accessor.NewMetadata(accessor.ModeDir)
				}
				continue
			}
		}
		seen[key] = obj.metadata.Clone()
	}

	entries := make([]accessor.Entry, 0, len(seen))
	for key, md := range seen {
		entries = append(entries, accessor.Entry{Path: key, Metadata: md})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

func (b *Backend) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[src]
	if !ok {
		return errors.Errorf(errors.KindNotFound, "%s does not exist", src)
	}
	b.objects[dst] = &object{
		data:     append([]byte(nil), obj.data...),
		metadata: obj.metadata.Clone().WithLastModified(time.Now()),
	}
	return nil
}

func (b *Backend) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[src]
	if !ok {
		return errors.Errorf(errors.KindNotFound, "%s does not exist", src)
	}
	b.objects[dst] = obj
	delete(b.objects, src)
	return nil
}
