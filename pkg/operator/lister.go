package operator

import (
	"context"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/paths"
)

// ListOptions controls a listing.
type ListOptions struct {
	// Recursive walks the whole subtree instead of one directory level.
	Recursive bool

	// Limit bounds the page size; 0 lets the backend choose.
	Limit int
}

// Lister pages through a directory listing. The continuation cursor is
// backend-private and passed back unmodified between pages.
type Lister struct {
	accessor accessor.Accessor
	path     string
	args     accessor.OpList
	done     bool
}

// List opens a pager over the directory at path.
func (o *Operator) List(ctx context.Context, path string, opts ListOptions) (*Lister, error) {
	p, err := paths.NormalizeDir(path)
	if err != nil {
		return nil, err
	}
	args := accessor.OpList{Limit: opts.Limit}
	if !opts.Recursive {
		args.Delimiter = "/"
	}
	return &Lister{accessor: o.accessor, path: p, args: args}, nil
}

// HasNext reports whether another page may follow. It is true before the
// first fetch and turns false once a page comes back with an empty cursor.
func (l *Lister) HasNext() bool { return !l.done }

// Next fetches the next page of entries. After the listing ends it returns
// nil entries and no error.
func (l *Lister) Next(ctx context.Context) ([]accessor.Entry, error) {
	if l.done {
		return nil, nil
	}
	page, err := l.accessor.List(ctx, l.path, l.args)
	if err != nil {
		return nil, err
	}
	l.args.Cursor = page.Cursor
	if page.Cursor == "" {
		l.done = true
	}
	return page.Entries, nil
}

// All drains the listing into one slice.
func (l *Lister) All(ctx context.Context) ([]accessor.Entry, error) {
	var all []accessor.Entry
	for l.HasNext() {
		entries, err := l.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}
