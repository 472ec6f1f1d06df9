package config

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unistore/unistore/pkg/errors"
)

func TestBuildFullStack(t *testing.T) {
	doc := `
backend:
  scheme: memory
  name: primary
layers:
  - type: retry
    retry:
      max_attempts: 5
  - type: metacache
    metacache:
      size: 128
  - type: metrics
    metrics:
      namespace: unistore
  - type: logging
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	op, err := cfg.Build(context.Background(), BuildOptions{
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	assert.Equal(t, "memory", op.Info().Scheme)
	assert.Equal(t, "primary", op.Info().Name)

	_, err = op.Write(context.Background(), "/smoke", []byte("ok"))
	require.NoError(t, err)
	data, err := op.Read(context.Background(), "/smoke")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestUnknownSchemeFailsFast(t *testing.T) {
	cfg, err := Parse([]byte("backend:\n  scheme: gopher\n"))
	require.NoError(t, err)

	_, err = cfg.Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
	assert.Contains(t, err.Error(), "gopher")
}

func TestUnknownLayerFailsFast(t *testing.T) {
	doc := `
backend:
  scheme: memory
layers:
  - type: teleport
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	_, err = cfg.Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
	assert.Contains(t, err.Error(), "teleport")
}

func TestUnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte("backend:\n  scheme: memory\n  shard_count: 4\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
}

func TestMissingSchemeRejected(t *testing.T) {
	_, err := Parse([]byte("layers: []\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
}

func TestBadCompressCodecFailsFast(t *testing.T) {
	doc := `
backend:
  scheme: memory
layers:
  - type: compress
    compress:
      codec: lz9
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	_, err = cfg.Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
}
