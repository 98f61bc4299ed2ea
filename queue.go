package rotorhttp

import (
	"github.com/valyala/bytebufferpool"
)

// InputQueue is the transport's inbound byte queue. Bytes arrive via Append,
// are inspected in place via Bytes, and are retired via Consume or
// RemoveRange once the parser has handed them (or the framing overhead
// around them) to the handler.
//
// Consume moves the front of the queue forward; RemoveRange splices
// framing bytes out of the unconsumed prefix, shifting the bytes after
// them down.
type InputQueue struct {
	buf *bytebufferpool.ByteBuffer
	off int
}

func newInputQueue() *InputQueue {
	return &InputQueue{buf: AcquireByteBuffer()}
}

func (q *InputQueue) reset() {
	q.buf.Reset()
	q.off = 0
}

func (q *InputQueue) release() {
	ReleaseByteBuffer(q.buf)
	q.buf = nil
}

// Bytes returns the unconsumed prefix of the queue.
func (q *InputQueue) Bytes() []byte {
	return q.buf.B[q.off:]
}

// Len returns the number of unconsumed bytes currently buffered.
func (q *InputQueue) Len() int {
	return len(q.buf.B) - q.off
}

// Append adds freshly read bytes to the tail of the queue.
func (q *InputQueue) Append(p []byte) {
	q.buf.B = append(q.buf.B, p...)
}

// Consume drops the first n unconsumed bytes, e.g. after delivering them to
// the handler.
func (q *InputQueue) Consume(n int) {
	if n <= 0 {
		return
	}
	q.off += n
	q.compact()
}

// RemoveRange splices out framing bytes in [lo, hi) of the unconsumed
// prefix without delivering them anywhere, e.g. a chunk-size line or a
// chunk's trailing CRLF.
func (q *InputQueue) RemoveRange(lo, hi int) {
	b := q.buf.B
	start := q.off + lo
	end := q.off + hi
	b = append(b[:start], b[end:]...)
	q.buf.B = b
}

func (q *InputQueue) compact() {
	// Avoid unbounded growth of the already-consumed prefix: once it
	// dwarfs what's left, slide the remainder back to the front.
	if q.off > 0 && (q.off >= len(q.buf.B) || q.off > 4096 && q.off > len(q.buf.B)-q.off) {
		n := copy(q.buf.B, q.buf.B[q.off:])
		q.buf.B = q.buf.B[:n]
		q.off = 0
	}
}

// OutputQueue is the transport's outbound byte queue. It is co-owned by the
// parser (100-continue lines, error pages) and the handler (response
// bytes); both only ever append.
type OutputQueue struct {
	buf     *bytebufferpool.ByteBuffer
	flushed int
}

func newOutputQueue() *OutputQueue {
	return &OutputQueue{buf: AcquireByteBuffer()}
}

func (q *OutputQueue) reset() {
	q.buf.Reset()
	q.flushed = 0
}

func (q *OutputQueue) release() {
	ReleaseByteBuffer(q.buf)
	q.buf = nil
}

// Append adds bytes to the tail of the queue.
func (q *OutputQueue) Append(p []byte) {
	q.buf.B = append(q.buf.B, p...)
}

// AppendString adds a string to the tail of the queue without an
// intermediate allocation.
func (q *OutputQueue) AppendString(s string) {
	q.buf.B = append(q.buf.B, s...)
}

// Pending returns the bytes not yet reported as flushed to the socket.
func (q *OutputQueue) Pending() []byte {
	return q.buf.B[q.flushed:]
}

// MarkFlushed records that n more bytes have been written to the socket.
func (q *OutputQueue) MarkFlushed(n int) {
	q.flushed += n
}

// Drained reports whether every appended byte has been flushed.
func (q *OutputQueue) Drained() bool {
	return q.flushed >= len(q.buf.B)
}
