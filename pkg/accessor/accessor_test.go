package accessor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unistore/unistore/pkg/errors"
)

func TestCapabilityHas(t *testing.T) {
	caps := CapRead | CapWrite | CapStat
	assert.True(t, caps.Has(CapRead))
	assert.True(t, caps.Has(CapRead|CapStat))
	assert.False(t, caps.Has(CapList))
	assert.False(t, caps.Has(CapRead|CapList))
	assert.True(t, CapAll.Has(CapPresign))
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "read|write", (CapRead | CapWrite).String())
	assert.Equal(t, "", Capability(0).String())
}

func TestCapabilityFor(t *testing.T) {
	for _, op := range Operations {
		assert.NotZero(t, CapabilityFor(op), "operation %s has no capability bit", op)
	}
	assert.Zero(t, CapabilityFor(Operation("bogus")))
}

func TestOperationIdempotency(t *testing.T) {
	idempotent := []Operation{OperationStat, OperationRead, OperationDelete, OperationList, OperationPresign}
	for _, op := range idempotent {
		assert.True(t, op.IsIdempotent(), "%s", op)
	}
	for _, op := range []Operation{OperationCreate, OperationWrite, OperationCopy, OperationRename} {
		assert.False(t, op.IsIdempotent(), "%s", op)
	}
}

func TestBytesRangeClamp(t *testing.T) {
	cases := []struct {
		name       string
		r          BytesRange
		size       int64
		wantOff    int64
		wantLen    int64
		wantErr    bool
		wantErrKey errors.Kind
	}{
		{name: "full", r: BytesRange{}, size: 100, wantOff: 0, wantLen: 100},
		{name: "clamped end", r: BytesRange{Offset: 50, Length: 950}, size: 100, wantOff: 50, wantLen: 50},
		{name: "within", r: BytesRange{Offset: 10, Length: 20}, size: 100, wantOff: 10, wantLen: 20},
		{name: "open end", r: BytesRange{Offset: 30}, size: 100, wantOff: 30, wantLen: 70},
		{name: "at end", r: BytesRange{Offset: 100}, size: 100, wantOff: 100, wantLen: 0},
		{name: "past end", r: BytesRange{Offset: 150, Length: 50}, size: 100, wantErr: true, wantErrKey: errors.KindRangeNotSatisfiable},
		{name: "negative", r: BytesRange{Offset: -1}, size: 100, wantErr: true, wantErrKey: errors.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			off, length, err := tc.r.Clamp(tc.size)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, tc.wantErrKey, errors.ErrKind(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOff, off)
			assert.Equal(t, tc.wantLen, length)
		})
	}
}

func TestBytesRangeString(t *testing.T) {
	assert.Equal(t, "", BytesRange{}.String())
	assert.Equal(t, "bytes=10-", BytesRange{Offset: 10}.String())
	assert.Equal(t, "bytes=10-29", BytesRange{Offset: 10, Length: 20}.String())
	assert.Equal(t, "bytes=0-0", BytesRange{Offset: 0, Length: 1}.String())
	// An invalid range still renders its values for logs.
	assert.Equal(t, "bytes=-5-", BytesRange{Offset: -5}.String())
}

func TestMetadataOptionalFields(t *testing.T) {
	md := NewMetadata(ModeFile)
	_, ok := md.ContentLength()
	assert.False(t, ok)
	_, ok = md.ETag()
	assert.False(t, ok)

	now := time.Now()
	md.WithContentLength(0).WithLastModified(now).WithContentType("text/plain")

	n, ok := md.ContentLength()
	assert.True(t, ok, "explicit zero length must read as reported")
	assert.Zero(t, n)

	ts, ok := md.LastModified()
	assert.True(t, ok)
	assert.Equal(t, now, ts)

	ct, ok := md.ContentType()
	assert.True(t, ok)
	assert.Equal(t, "text/plain", ct)
}

func TestMetadataClone(t *testing.T) {
	md := NewMetadata(ModeFile).WithContentLength(7)
	cp := md.Clone()
	cp.WithContentLength(99)

	n, _ := md.ContentLength()
	assert.EqualValues(t, 7, n)
}

func TestUnimplemented(t *testing.T) {
	var u Unimplemented
	ctx := context.Background()

	err := u.Create(ctx, "/x", OpCreate{})
	assert.Equal(t, errors.KindUnsupported, errors.ErrKind(err))

	_, err = u.Read(ctx, "/x", OpRead{})
	assert.Equal(t, errors.KindUnsupported, errors.ErrKind(err))

	_, err = u.Presign(ctx, "/x", OpPresign{})
	assert.Equal(t, errors.KindUnsupported, errors.ErrKind(err))
}
