package rotorhttp

import "time"

// Handler is the polymorphic, per-request application state the parser
// drives through a strict callback lifecycle:
//
//	HeadersReceived -> (RequestChunk)* -> (RequestReceived | RequestEnd) -> response finish
//
// Every callback may return nil to abort the request: no further callbacks
// are issued for it, and the caller must already have finished the
// response (for RequestReceived/RequestEnd/RequestChunk) or supplied a
// rejection status (for HeadersReceived).
type Handler interface {
	// RequestChunk delivers one piece of a progressively-streamed body.
	// Only called in Progressive delivery mode.
	RequestChunk(chunk []byte, resp *Response) Handler

	// RequestReceived delivers the complete body in one call. Only
	// called in Buffered delivery mode.
	RequestReceived(body []byte, resp *Response) Handler

	// RequestEnd signals that a progressively-streamed body has been
	// fully delivered. Only called in Progressive delivery mode.
	RequestEnd(resp *Response) Handler

	// BadRequest is a terminal notification that the request became
	// malformed after the handler was already created (e.g. broken
	// chunk framing). The handler must not expect any further calls.
	BadRequest(resp *Response)
}

// DeliveryMode is the handler-declared policy for how the body should be
// presented.
type DeliveryMode struct {
	progressive bool
	cap         int // Buffered: max bytes the parser may accumulate.
	hint        int // Progressive: rough size of each RequestChunk call.
}

// Buffered requests that the whole body be delivered in a single
// RequestReceived call. A declared Content-Length of cap bytes or more is
// rejected with 413; a chunked body that grows past cap bytes is rejected
// with 400.
func Buffered(cap int) DeliveryMode {
	return DeliveryMode{progressive: false, cap: cap}
}

// Progressive requests that the body be streamed to RequestChunk in
// roughly hint-sized pieces.
func Progressive(hint int) DeliveryMode {
	return DeliveryMode{progressive: true, hint: hint}
}

func (m DeliveryMode) IsProgressive() bool { return m.progressive }
func (m DeliveryMode) Cap() int            { return m.cap }
func (m DeliveryMode) Hint() int           { return m.hint }

// Accepted is returned by HandlerFactory.HeadersReceived when the request
// is accepted: the handler instance to drive, the delivery mode it chose,
// and the deadline it wants enforced for the rest of this request (nil
// keeps the connection's ambient byte deadline only).
type Accepted struct {
	Handler  Handler
	Mode     DeliveryMode
	Deadline *time.Time
}

// HandlerFactory selects and constructs a Handler for each new request.
// It is the entry point of the handler contract; there is no live Handler
// instance until it returns one.
type HandlerFactory interface {
	// HeadersReceived inspects the parsed request head and either
	// accepts the request (returning a non-nil *Accepted) or rejects it
	// with the given status code.
	HeadersReceived(head *Head) (*Accepted, int)
}

// HandlerFactoryFunc adapts a plain function to a HandlerFactory.
type HandlerFactoryFunc func(head *Head) (*Accepted, int)

func (f HandlerFactoryFunc) HeadersReceived(head *Head) (*Accepted, int) {
	return f(head)
}
