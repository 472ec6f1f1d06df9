package bolt

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/backend/backendtest"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open("bolt-test", filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) accessor.Accessor {
		return openTestBackend(t)
	})
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	b, err := Open("", path)
	require.NoError(t, err)
	_, err = b.Write(context.Background(), "/durable", accessor.OpWrite{}, strings.NewReader("kept"))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = Open("", path)
	require.NoError(t, err)
	defer b.Close()

	r, err := b.Read(context.Background(), "/durable", accessor.OpRead{})
	require.NoError(t, err)
	defer r.Close()
	buf := make([]byte, 4)
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(buf))
}

func TestStatReportsStoredMetadata(t *testing.T) {
	b := openTestBackend(t)

	_, err := b.Write(context.Background(), "/typed", accessor.OpWrite{ContentType: "text/plain"},
		strings.NewReader("abc"))
	require.NoError(t, err)

	md, err := b.Stat(context.Background(), "/typed", accessor.OpStat{})
	require.NoError(t, err)

	ct, ok := md.ContentType()
	require.True(t, ok)
	assert.Equal(t, "text/plain", ct)
	etag, ok := md.ETag()
	require.True(t, ok)
	assert.NotEmpty(t, etag)
}
