package operator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spf13/afero"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/backend/fs"
	"github.com/unistore/unistore/pkg/backend/memory"
	"github.com/unistore/unistore/pkg/errors"
)

// restricted hides capabilities from an accessor to exercise emulation and
// capability gating.
type restricted struct {
	accessor.Accessor
	caps accessor.Capability
}

func (r *restricted) Info() accessor.About {
	about := r.Accessor.Info()
	about.Capabilities = r.caps
	return about
}

func TestPathNormalizationAtBoundary(t *testing.T) {
	op := New(memory.New(""))

	_, err := op.Write(context.Background(), "a//b/./c.txt", []byte("normalized"))
	require.NoError(t, err)

	data, err := op.Read(context.Background(), "/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "normalized", string(data))

	_, err = op.Read(context.Background(), "/a/../etc/passwd")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
}

func TestRangeSemanticsEndToEnd(t *testing.T) {
	op := New(memory.New(""))

	content := make([]byte, 100)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	_, err := op.Write(context.Background(), "/blob", content)
	require.NoError(t, err)

	got, err := op.ReadRange(context.Background(), "/blob", 50, 950)
	require.NoError(t, err)
	assert.Equal(t, content[50:], got)

	got, err = op.ReadRange(context.Background(), "/blob", 100, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = op.ReadRange(context.Background(), "/blob", 150, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindRangeNotSatisfiable))
}

func TestListPagination(t *testing.T) {
	op := New(memory.New(""))

	want := []string{"/p/a", "/p/b", "/p/c", "/p/d", "/p/e"}
	for _, p := range want {
		_, err := op.Write(context.Background(), p, []byte("x"))
		require.NoError(t, err)
	}

	lister, err := op.List(context.Background(), "/p", ListOptions{Limit: 2})
	require.NoError(t, err)

	var got []string
	pages := 0
	for lister.HasNext() {
		entries, err := lister.Next(context.Background())
		require.NoError(t, err)
		pages++
		for _, e := range entries {
			got = append(got, e.Path)
		}
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 3, pages)

	// Drained pager stays drained.
	entries, err := lister.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListRecursive(t *testing.T) {
	op := New(memory.New(""))

	for _, p := range []string{"/t/a", "/t/sub/b", "/t/sub/deep/c"} {
		_, err := op.Write(context.Background(), p, []byte("x"))
		require.NoError(t, err)
	}

	lister, err := op.List(context.Background(), "/t", ListOptions{Recursive: true})
	require.NoError(t, err)
	entries, err := lister.All(context.Background())
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"/t/a", "/t/sub/b", "/t/sub/deep/c"}, paths)
}

func TestRenameEmulation(t *testing.T) {
	inner := memory.New("")
	caps := accessor.CapCreate | accessor.CapRead | accessor.CapWrite |
		accessor.CapStat | accessor.CapDelete | accessor.CapList | accessor.CapCopy
	op := New(&restricted{Accessor: inner, caps: caps})

	_, err := op.Write(context.Background(), "/old", []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, op.Rename(context.Background(), "/old", "/new"))

	data, err := op.Read(context.Background(), "/new")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = op.Stat(context.Background(), "/old")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func TestCopyEmulation(t *testing.T) {
	inner := memory.New("")
	caps := accessor.CapCreate | accessor.CapRead | accessor.CapWrite |
		accessor.CapStat | accessor.CapDelete | accessor.CapList
	op := New(&restricted{Accessor: inner, caps: caps})

	_, err := op.Write(context.Background(), "/src", []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, op.Copy(context.Background(), "/src", "/dst"))

	data, err := op.Read(context.Background(), "/dst")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// Source untouched.
	data, err = op.Read(context.Background(), "/src")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestCopySamePathRejected(t *testing.T) {
	op := New(memory.New(""))

	err := op.Copy(context.Background(), "/a", "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
}

func TestUnsupportedOutsideCapabilities(t *testing.T) {
	inner := memory.New("")
	op := New(&restricted{Accessor: inner, caps: accessor.CapRead | accessor.CapStat | accessor.CapList})

	_, err := op.Write(context.Background(), "/a", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindUnsupported))
}

func TestRemoveAllDeletesSubtree(t *testing.T) {
	op := New(memory.New(""))

	for _, p := range []string{"/tree/a", "/tree/sub/b", "/tree/sub/deep/c"} {
		_, err := op.Write(context.Background(), p, []byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, op.CreateDir(context.Background(), "/tree/empty/"))
	_, err := op.Write(context.Background(), "/outside", []byte("keep"))
	require.NoError(t, err)

	require.NoError(t, op.RemoveAll(context.Background(), "/tree"))

	for _, p := range []string{"/tree/a", "/tree/sub/b", "/tree/sub/deep/c", "/tree"} {
		_, err := op.Stat(context.Background(), p)
		require.Error(t, err, p)
		assert.True(t, errors.Is(err, errors.KindNotFound), p)
	}
	// Siblings survive.
	_, err = op.Stat(context.Background(), "/outside")
	require.NoError(t, err)
}

// A directory tree on a real filesystem only unwinds bottom up, so this
// exercises the deletion order, not just the end state.
func TestRemoveAllUnwindsDirectories(t *testing.T) {
	op := New(fs.NewWithFs("", "/", afero.NewMemMapFs()))

	for _, p := range []string{"/tree/a", "/tree/sub/b", "/tree/sub/deep/c"} {
		_, err := op.Write(context.Background(), p, []byte("x"))
		require.NoError(t, err)
	}

	require.NoError(t, op.RemoveAll(context.Background(), "/tree"))

	_, err := op.Stat(context.Background(), "/tree")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func TestRemoveAllSingleFile(t *testing.T) {
	op := New(memory.New(""))

	_, err := op.Write(context.Background(), "/solo", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, op.RemoveAll(context.Background(), "/solo"))

	_, err = op.Stat(context.Background(), "/solo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func TestRemoveAllMissingPath(t *testing.T) {
	op := New(memory.New(""))

	err := op.RemoveAll(context.Background(), "/ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func TestCheck(t *testing.T) {
	op := New(memory.New(""))
	require.NoError(t, op.Check(context.Background()))
}
