package layers

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

func TestCompleteRejectsOutsideCapabilities(t *testing.T) {
	inner := newMockAccessor()
	inner.about.Capabilities = accessor.CapRead | accessor.CapStat
	wrapped := NewComplete().Wrap(inner)

	_, err := wrapped.Write(context.Background(), "/a", accessor.OpWrite{}, strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindUnsupported))
	assert.Equal(t, 0, inner.callCount(accessor.OperationWrite), "the backend must not be reached")

	err = wrapped.Delete(context.Background(), "/a", accessor.OpDelete{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindUnsupported))
}

func TestCompleteAllowsWithinCapabilities(t *testing.T) {
	inner := newMockAccessor()
	inner.about.Capabilities = accessor.CapRead | accessor.CapStat
	inner.objects["/a"] = []byte("hi")
	wrapped := NewComplete().Wrap(inner)

	_, err := wrapped.Stat(context.Background(), "/a", accessor.OpStat{})
	require.NoError(t, err)
}

func TestCompleteValidatesArguments(t *testing.T) {
	inner := newMockAccessor()
	wrapped := NewComplete().Wrap(inner)

	_, err := wrapped.Read(context.Background(), "/a", accessor.OpRead{
		Range: accessor.BytesRange{Offset: -1},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))

	_, err = wrapped.Write(context.Background(), "/a", accessor.OpWrite{ContentLength: -2}, strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))

	_, err = wrapped.List(context.Background(), "/", accessor.OpList{Limit: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))

	_, err = wrapped.Presign(context.Background(), "/a", accessor.OpPresign{Operation: accessor.OperationDelete})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
}

func TestCompleteAnnotatesErrors(t *testing.T) {
	inner := newMockAccessor()
	inner.fail(accessor.OperationStat, errors.New(errors.KindNotFound, "no such object"))
	wrapped := NewComplete().Wrap(inner)

	_, err := wrapped.Stat(context.Background(), "/missing", accessor.OpStat{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat")
	assert.Contains(t, err.Error(), "/missing")
	assert.Contains(t, err.Error(), "mock")
}

func TestCompleteWrapsForeignErrors(t *testing.T) {
	inner := newMockAccessor()
	plain := stderrors.New("raw failure")
	inner.fail(accessor.OperationDelete, plain)
	wrapped := NewComplete().Wrap(inner)

	err := wrapped.Delete(context.Background(), "/a", accessor.OpDelete{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindOther))
	assert.True(t, stderrors.Is(err, plain), "the native error stays reachable as the cause")
}
