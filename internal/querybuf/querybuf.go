// Package querybuf implements the small-buffer-optimized byte container
// used for both outbound DNS queries and inbound responses: an inline
// array absorbs the common case (a single query or response under a few
// KiB) and only messages that exceed the inline threshold force a heap
// allocation.
package querybuf

import "sync"

// InlineCapacity is the production inline threshold T. Messages that fit
// within this many bytes never touch the heap.
const InlineCapacity = 2048

// MaxLen is the largest length the buffer can represent; Append saturates
// rather than growing past it, matching the 16-bit DNS message length
// field used over TCP framing.
const MaxLen = 65535

// QueryBuf is a byte sequence of length <= MaxLen. The zero value is a
// valid, empty buffer.
type QueryBuf struct {
	inline [InlineCapacity]byte
	heap   []byte
	length uint16
}

// New returns an empty, zero-length buffer.
func New() *QueryBuf {
	return &QueryBuf{}
}

// NewZeroed returns a buffer of length L with all bytes set to zero.
// Used to lay out fixed-size header regions before overwriting fields.
func NewZeroed(length int) *QueryBuf {
	q := &QueryBuf{}
	if length < 0 {
		length = 0
	}
	if length > MaxLen {
		length = MaxLen
	}
	if length > InlineCapacity {
		q.heap = make([]byte, length)
	}
	q.length = uint16(length)
	return q
}

// Len returns the current length in bytes.
func (q *QueryBuf) Len() int {
	return int(q.length)
}

// Bytes returns the buffer contents as a slice. The slice aliases the
// buffer's internal storage and must not be retained past the next call
// to Append.
func (q *QueryBuf) Bytes() []byte {
	if q.heap != nil {
		return q.heap[:q.length]
	}
	return q.inline[:q.length]
}

// IntoBytes returns an owned copy of the buffer contents, safe to retain
// independently of the QueryBuf's lifetime.
func (q *QueryBuf) IntoBytes() []byte {
	out := make([]byte, q.length)
	copy(out, q.Bytes())
	return out
}

// Append adds data to the end of the buffer, saturating the total length
// at MaxLen (excess bytes are silently dropped, matching the wire
// length limit this buffer represents).
func (q *QueryBuf) Append(data []byte) {
	room := MaxLen - int(q.length)
	if room <= 0 {
		return
	}
	if len(data) > room {
		data = data[:room]
	}
	total := int(q.length) + len(data)

	if q.heap == nil && total <= InlineCapacity {
		copy(q.inline[q.length:total], data)
		q.length = uint16(total)
		return
	}

	if q.heap == nil {
		// Crossing the inline threshold: migrate what we have onto the
		// heap before appending the rest.
		q.heap = make([]byte, q.length, total*2)
		copy(q.heap, q.inline[:q.length])
	}
	if cap(q.heap) < total {
		grown := make([]byte, len(q.heap), total)
		copy(grown, q.heap)
		q.heap = grown
	}
	q.heap = q.heap[:total]
	copy(q.heap[q.length:total], data)
	q.length = uint16(total)
}

// AppendByte appends a single byte.
func (q *QueryBuf) AppendByte(b byte) {
	q.Append([]byte{b})
}

// reset clears the buffer to its zero state, wiping any previously held
// bytes before the struct is returned to the pool. DNS query/response
// bytes may be sensitive to the caller (e.g. contain private zone data),
// so the inline array is explicitly zeroed rather than merely truncated.
func (q *QueryBuf) reset() {
	for i := range q.inline {
		q.inline[i] = 0
	}
	if q.heap != nil {
		for i := range q.heap {
			q.heap[i] = 0
		}
	}
	q.heap = nil
	q.length = 0
}

// Pool recycles QueryBuf instances across successive proof-builder
// invocations to reduce allocator pressure on the hot path of issuing
// many small queries.
var Pool = sync.Pool{
	New: func() interface{} {
		return New()
	},
}

// Get returns a zeroed buffer from the pool.
func Get() *QueryBuf {
	return Pool.Get().(*QueryBuf)
}

// Put clears and returns a buffer to the pool.
func Put(q *QueryBuf) {
	if q == nil {
		return
	}
	q.reset()
	Pool.Put(q)
}
