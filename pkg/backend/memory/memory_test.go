package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/backend/backendtest"
	"github.com/unistore/unistore/pkg/errors"
)

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) accessor.Accessor {
		return New("memory-test")
	})
}

func TestCreateExisting(t *testing.T) {
	b := New("")

	require.NoError(t, b.Create(context.Background(), "/marker/", accessor.OpCreate{Mode: accessor.ModeDir}))
	err := b.Create(context.Background(), "/marker/", accessor.OpCreate{Mode: accessor.ModeDir})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindAlreadyExists))
}

func TestWriteAppend(t *testing.T) {
	b := New("")

	_, err := b.Write(context.Background(), "/log", accessor.OpWrite{}, strings.NewReader("one"))
	require.NoError(t, err)
	md, err := b.Write(context.Background(), "/log", accessor.OpWrite{Append: true}, strings.NewReader("two"))
	require.NoError(t, err)

	length, ok := md.ContentLength()
	require.True(t, ok)
	assert.Equal(t, int64(6), length)

	r, err := b.Read(context.Background(), "/log", accessor.OpRead{})
	require.NoError(t, err)
	defer r.Close()
	data := make([]byte, 6)
	_, err = r.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(data))
}

func TestListKeepsDirectChildMarkerRecord(t *testing.T) {
	b := New("")

	require.NoError(t, b.Create(context.Background(), "/dir/sub/", accessor.OpCreate{Mode: accessor.ModeDir}))
	_, err := b.Write(context.Background(), "/dir/sub/file", accessor.OpWrite{}, strings.NewReader("x"))
	require.NoError(t, err)

	page, err := b.List(context.Background(), "/dir/", accessor.OpList{Delimiter: "/"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)

	// The marker's stored record survives; it is not replaced by a
	// synthesized directory entry.
	entry := page.Entries[0]
	assert.Equal(t, "/dir/sub/", entry.Path)
	assert.Equal(t, accessor.ModeDir, entry.Metadata.Mode())
	_, ok := entry.Metadata.LastModified()
	assert.True(t, ok)
}

func TestPresignUnsupported(t *testing.T) {
	b := New("")

	_, err := b.Presign(context.Background(), "/a", accessor.OpPresign{Operation: accessor.OperationRead})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindUnsupported))
}
