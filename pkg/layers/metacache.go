package layers

import (
	"context"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/unistore/unistore/pkg/accessor"
)

// DefaultMetacacheSize bounds the cache when no size is configured.
const DefaultMetacacheSize = 4096

// Metacache reuses metadata already known from write replies and list
// entries, so a stat right after a write or list never touches the backend.
// Writes and deletes invalidate before repopulating; a miss falls through to
// the inner stat and caches its reply.
type Metacache struct {
	size int
}

// NewMetacache creates the metadata cache layer. size <= 0 selects
// DefaultMetacacheSize.
func NewMetacache(size int) *Metacache {
	if size <= 0 {
		size = DefaultMetacacheSize
	}
	return &Metacache{size: size}
}

// Wrap implements Layer.
func (l *Metacache) Wrap(inner accessor.Accessor) accessor.Accessor {
	cache, err := lru.New[string, *accessor.Metadata](l.size)
	if err != nil {
		// lru.New only fails on a non-positive size, which the
		// constructor rules out.
		panic(err)
	}
	return &metacacheAccessor{Accessor: inner, cache: cache}
}

type metacacheAccessor struct {
	accessor.Accessor
	cache *lru.Cache[string, *accessor.Metadata]
}

func (a *metacacheAccessor) put(path string, md *accessor.Metadata) {
	if md != nil {
		a.cache.Add(path, md.Clone())
	}
}

func (a *metacacheAccessor) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	a.cache.Remove(path)
	return a.Accessor.Create(ctx, path, args)
}

func (a *metacacheAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	a.cache.Remove(path)
	md, err := a.Accessor.Write(ctx, path, args, body)
	if err != nil {
		return nil, err
	}
	a.put(path, md)
	return md, nil
}

func (a *metacacheAccessor) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	if md, ok := a.cache.Get(path); ok {
		return md.Clone(), nil
	}
	md, err := a.Accessor.Stat(ctx, path, args)
	if err != nil {
		return nil, err
	}
	a.put(path, md)
	return md, nil
}

func (a *metacacheAccessor) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	a.cache.Remove(path)
	return a.Accessor.Delete(ctx, path, args)
}

func (a *metacacheAccessor) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	page, err := a.Accessor.List(ctx, path, args)
	if err != nil {
		return nil, err
	}
	for _, entry := range page.Entries {
		a.put(entry.Path, entry.Metadata)
	}
	return page, nil
}

func (a *metacacheAccessor) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	a.cache.Remove(dst)
	return a.Accessor.Copy(ctx, src, dst, args)
}

func (a *metacacheAccessor) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	a.cache.Remove(src)
	a.cache.Remove(dst)
	return a.Accessor.Rename(ctx, src, dst, args)
}
