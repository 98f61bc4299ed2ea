package rotorhttp

// Response is a cursor into the connection's shared outbound byte queue.
// Handlers and the parser are the only two writers, and both only ever
// append: the parser appends a "100 Continue" status line and rendered
// error pages, handlers append everything else.
type Response struct {
	out       *OutputQueue
	isHead    bool
	started   bool
	completed bool
}

func newResponse(out *OutputQueue, isHead bool) *Response {
	return &Response{out: out, isHead: isHead}
}

// Write appends response bytes to the output queue and marks the response
// as started. It never rewrites bytes already appended.
func (r *Response) Write(p []byte) (int, error) {
	r.started = true
	r.out.Append(p)
	return len(p), nil
}

// WriteString is the string counterpart of Write.
func (r *Response) WriteString(s string) (int, error) {
	r.started = true
	r.out.AppendString(s)
	return len(s), nil
}

// IsStarted reports whether any bytes have been appended yet.
func (r *Response) IsStarted() bool { return r.started }

// IsHead reports whether the request used the HEAD method, in which case
// a well-behaved handler writes headers only and suppresses the body.
func (r *Response) IsHead() bool { return r.isHead }

// Finish marks the response complete. A response must be finished before
// the connection transitions to DoneResponse.
func (r *Response) Finish() { r.completed = true }

// IsComplete reports whether Finish has been called.
func (r *Response) IsComplete() bool { return r.completed }
