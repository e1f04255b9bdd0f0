package querybuf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsEmpty(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Bytes())
}

func TestNewZeroed(t *testing.T) {
	q := NewZeroed(10)
	require.Equal(t, 10, q.Len())
	assert.Equal(t, make([]byte, 10), q.Bytes())
}

func TestAppendStaysInline(t *testing.T) {
	q := New()
	q.Append([]byte("hello"))
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, []byte("hello"), q.Bytes())
}

func TestAppendCrossesToHeap(t *testing.T) {
	q := New()
	q.Append(make([]byte, InlineCapacity))
	assert.Equal(t, InlineCapacity, q.Len())

	q.Append([]byte("tail"))
	assert.Equal(t, InlineCapacity+4, q.Len())
	assert.True(t, bytes.HasSuffix(q.Bytes(), []byte("tail")))
}

func TestAppendSaturatesAtMaxLen(t *testing.T) {
	q := New()
	q.Append(make([]byte, MaxLen))
	assert.Equal(t, MaxLen, q.Len())

	q.Append([]byte("overflow"))
	assert.Equal(t, MaxLen, q.Len(), "length must saturate rather than exceed MaxLen")
}

func TestIntoBytesIsOwned(t *testing.T) {
	q := New()
	q.Append([]byte("abc"))
	owned := q.IntoBytes()
	owned[0] = 'z'
	assert.Equal(t, []byte("abc"), q.Bytes(), "IntoBytes must not alias the buffer")
}

func TestPoolRoundTripClearsState(t *testing.T) {
	q := Get()
	q.Append([]byte("secret"))
	Put(q)

	q2 := Get()
	assert.Equal(t, 0, q2.Len())
	for _, b := range q2.Bytes() {
		assert.Zero(t, b)
	}
}
