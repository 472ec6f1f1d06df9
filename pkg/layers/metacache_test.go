package layers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unistore/unistore/pkg/accessor"
)

func TestMetacacheStatAfterWriteSkipsBackend(t *testing.T) {
	inner := newMockAccessor()
	wrapped := NewMetacache(0).Wrap(inner)

	_, err := wrapped.Write(context.Background(), "/a", accessor.OpWrite{}, strings.NewReader("hello"))
	require.NoError(t, err)

	md, err := wrapped.Stat(context.Background(), "/a", accessor.OpStat{})
	require.NoError(t, err)
	length, ok := md.ContentLength()
	require.True(t, ok)
	assert.Equal(t, int64(5), length)
	assert.Equal(t, 0, inner.callCount(accessor.OperationStat), "write reply should satisfy the stat")
}

func TestMetacacheMissFallsThroughAndCaches(t *testing.T) {
	inner := newMockAccessor()
	inner.objects["/a"] = []byte("hi")
	wrapped := NewMetacache(0).Wrap(inner)

	_, err := wrapped.Stat(context.Background(), "/a", accessor.OpStat{})
	require.NoError(t, err)
	_, err = wrapped.Stat(context.Background(), "/a", accessor.OpStat{})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.callCount(accessor.OperationStat))
}

func TestMetacacheDeleteInvalidates(t *testing.T) {
	inner := newMockAccessor()
	wrapped := NewMetacache(0).Wrap(inner)

	_, err := wrapped.Write(context.Background(), "/a", accessor.OpWrite{}, strings.NewReader("hello"))
	require.NoError(t, err)
	require.NoError(t, wrapped.Delete(context.Background(), "/a", accessor.OpDelete{}))

	_, err = wrapped.Stat(context.Background(), "/a", accessor.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.callCount(accessor.OperationStat), "delete must drop the cached entry")
}

func TestMetacacheCachedCopyIsIsolated(t *testing.T) {
	inner := newMockAccessor()
	wrapped := NewMetacache(0).Wrap(inner)

	_, err := wrapped.Write(context.Background(), "/a", accessor.OpWrite{}, strings.NewReader("hello"))
	require.NoError(t, err)

	first, err := wrapped.Stat(context.Background(), "/a", accessor.OpStat{})
	require.NoError(t, err)
	mutated := first.WithContentType("text/corrupted")
	_ = mutated

	second, err := wrapped.Stat(context.Background(), "/a", accessor.OpStat{})
	require.NoError(t, err)
	_, ok := second.ContentType()
	assert.False(t, ok, "callers must not be able to mutate the cached copy")
}
