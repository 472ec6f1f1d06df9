// Package backendtest runs one conformance suite against any accessor so
// every backend proves the same contract semantics: range clamping, listing
// pagination, delete-missing behavior, and metadata on the write reply.
package backendtest

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

// Factory produces a fresh, empty accessor for each subtest.
type Factory func(t *testing.T) accessor.Accessor

// Run exercises the shared contract against the backend under test,
// skipping operations outside its capability set.
func Run(t *testing.T, factory Factory) {
	t.Run("WriteReadRoundTrip", func(t *testing.T) { testWriteReadRoundTrip(t, factory(t)) })
	t.Run("RangeSemantics", func(t *testing.T) { testRangeSemantics(t, factory(t)) })
	t.Run("StatSemantics", func(t *testing.T) { testStatSemantics(t, factory(t)) })
	t.Run("DeleteSemantics", func(t *testing.T) { testDeleteSemantics(t, factory(t)) })
	t.Run("ListPagination", func(t *testing.T) { testListPagination(t, factory(t)) })
	t.Run("ListDelimiter", func(t *testing.T) { testListDelimiter(t, factory(t)) })
	t.Run("Copy", func(t *testing.T) { testCopy(t, factory(t)) })
	t.Run("Rename", func(t *testing.T) { testRename(t, factory(t)) })
}

func write(t *testing.T, a accessor.Accessor, path, content string) *accessor.Metadata {
	t.Helper()
	md, err := a.Write(context.Background(), path, accessor.OpWrite{
		ContentLength: int64(len(content)),
	}, strings.NewReader(content))
	require.NoError(t, err)
	return md
}

func readAll(t *testing.T, a accessor.Accessor, path string, rng accessor.BytesRange) string {
	t.Helper()
	r, err := a.Read(context.Background(), path, accessor.OpRead{Range: rng})
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func testWriteReadRoundTrip(t *testing.T, a accessor.Accessor) {
	md := write(t, a, "/dir/file.txt", "hello backend")

	require.NotNil(t, md, "write must reply with metadata")
	length, ok := md.ContentLength()
	require.True(t, ok)
	assert.Equal(t, int64(13), length)
	assert.Equal(t, accessor.ModeFile, md.Mode())

	assert.Equal(t, "hello backend", readAll(t, a, "/dir/file.txt", accessor.BytesRange{}))
}

func testRangeSemantics(t *testing.T, a accessor.Accessor) {
	content := strings.Repeat("x", 100)
	write(t, a, "/blob", content)

	// Interior range.
	assert.Equal(t, content[10:30], readAll(t, a, "/blob", accessor.BytesRange{Offset: 10, Length: 20}))

	// End past the object clamps to the available bytes.
	assert.Equal(t, content[50:], readAll(t, a, "/blob", accessor.BytesRange{Offset: 50, Length: 950}))

	// Offset equal to the size is an empty read, not an error.
	assert.Equal(t, "", readAll(t, a, "/blob", accessor.BytesRange{Offset: 100}))

	// Offset past the size is unsatisfiable.
	_, err := a.Read(context.Background(), "/blob", accessor.OpRead{
		Range: accessor.BytesRange{Offset: 150},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindRangeNotSatisfiable))
}

func testStatSemantics(t *testing.T, a accessor.Accessor) {
	write(t, a, "/dir/file.txt", "content")

	md, err := a.Stat(context.Background(), "/dir/file.txt", accessor.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, accessor.ModeFile, md.Mode())
	length, ok := md.ContentLength()
	require.True(t, ok)
	assert.Equal(t, int64(7), length)

	md, err = a.Stat(context.Background(), "/dir/", accessor.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, accessor.ModeDir, md.Mode())

	_, err = a.Stat(context.Background(), "/missing", accessor.OpStat{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func testDeleteSemantics(t *testing.T, a accessor.Accessor) {
	write(t, a, "/doomed", "x")

	require.NoError(t, a.Delete(context.Background(), "/doomed", accessor.OpDelete{}))

	_, err := a.Stat(context.Background(), "/doomed", accessor.OpStat{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))

	err = a.Delete(context.Background(), "/doomed", accessor.OpDelete{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func testListPagination(t *testing.T, a accessor.Accessor) {
	want := []string{"/p/a", "/p/b", "/p/c", "/p/d", "/p/e"}
	for _, p := range want {
		write(t, a, p, "x")
	}

	var got []string
	args := accessor.OpList{Delimiter: "/", Limit: 2}
	for {
		page, err := a.List(context.Background(), "/p/", args)
		require.NoError(t, err)
		require.LessOrEqual(t, len(page.Entries), 2)
		for _, e := range page.Entries {
			got = append(got, e.Path)
		}
		if page.Cursor == "" {
			break
		}
		args.Cursor = page.Cursor
	}

	sort.Strings(got)
	assert.Equal(t, want, got)
}

func testListDelimiter(t *testing.T, a accessor.Accessor) {
	write(t, a, "/tree/a.txt", "x")
	write(t, a, "/tree/sub/b.txt", "x")
	write(t, a, "/tree/sub/deep/c.txt", "x")

	// One level: the nested files collapse into a directory entry.
	page, err := a.List(context.Background(), "/tree/", accessor.OpList{Delimiter: "/"})
	require.NoError(t, err)
	paths := entryPaths(page.Entries)
	assert.Equal(t, []string{"/tree/a.txt", "/tree/sub/"}, paths)

	for _, e := range page.Entries {
		if e.Path == "/tree/sub/" {
			assert.Equal(t, accessor.ModeDir, e.Metadata.Mode())
		}
	}

	// Recursive: every file, no synthesized directories required.
	page, err = a.List(context.Background(), "/tree/", accessor.OpList{})
	require.NoError(t, err)
	paths = entryPaths(page.Entries)
	assert.Subset(t, paths, []string{"/tree/a.txt", "/tree/sub/b.txt", "/tree/sub/deep/c.txt"})
}

func entryPaths(entries []accessor.Entry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths
}

func testCopy(t *testing.T, a accessor.Accessor) {
	if !a.Info().Capabilities.Has(accessor.CapCopy) {
		t.Skip("backend does not support copy")
	}
	write(t, a, "/src", "payload")

	require.NoError(t, a.Copy(context.Background(), "/src", "/dst", accessor.OpCopy{}))
	assert.Equal(t, "payload", readAll(t, a, "/dst", accessor.BytesRange{}))
	assert.Equal(t, "payload", readAll(t, a, "/src", accessor.BytesRange{}))

	err := a.Copy(context.Background(), "/missing", "/dst2", accessor.OpCopy{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func testRename(t *testing.T, a accessor.Accessor) {
	if !a.Info().Capabilities.Has(accessor.CapRename) {
		t.Skip("backend does not support rename")
	}
	write(t, a, "/old", "payload")

	require.NoError(t, a.Rename(context.Background(), "/old", "/new", accessor.OpRename{}))
	assert.Equal(t, "payload", readAll(t, a, "/new", accessor.BytesRange{}))

	_, err := a.Stat(context.Background(), "/old", accessor.OpStat{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}
