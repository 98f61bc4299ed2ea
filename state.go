package rotorhttp

import "time"

// parserState is the top-level state of a connection. Exactly one is
// active at a time; see readBody and the Parser methods in parser.go for
// the data each state carries.
type parserState int

const (
	stateIdle parserState = iota
	stateReadHeaders
	stateReadingBody
	stateProcessing
	stateDoneResponse
)

func (s parserState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateReadHeaders:
		return "ReadHeaders"
	case stateReadingBody:
		return "ReadingBody"
	case stateProcessing:
		return "Processing"
	case stateDoneResponse:
		return "DoneResponse"
	default:
		return "Unknown"
	}
}

// bodyProgress is the tagged variant describing where a request body
// stands in its framing discipline. The concrete types below are the only
// implementations; switches over bodyProgress are meant to be exhaustive.
type bodyProgress interface {
	isBodyProgress()
}

// bufferFixed collects exactly N more bytes, then delivers the whole body
// in one RequestReceived call.
type bufferFixed int

// bufferEOF collects until end-of-stream, up to a byte limit, then
// delivers the whole body in one RequestReceived call.
type bufferEOF int

// bufferChunked accumulates decoded chunk bytes into a contiguous prefix
// of the input queue without delivering them, until the terminal
// zero-length chunk is seen.
type bufferChunked struct {
	limit          int
	accumulated    int
	chunkRemaining int // 0 means "next expectation is a chunk-size line"
	seenChunk      bool // true once at least one chunk-size line has been parsed
}

// progressiveFixed streams a fixed-length body to the handler in
// ≤hint-sized RequestChunk calls.
type progressiveFixed struct {
	hint      int
	remaining int
}

// progressiveEOF streams a body to the handler until end-of-stream.
type progressiveEOF int

// progressiveChunked streams decoded chunk bytes to the handler rather
// than accumulating them.
type progressiveChunked struct {
	hint           int
	accumulated    int
	chunkRemaining int
	seenChunk      bool // true once at least one chunk-size line has been parsed
}

func (bufferFixed) isBodyProgress()        {}
func (bufferEOF) isBodyProgress()          {}
func (bufferChunked) isBodyProgress()      {}
func (progressiveFixed) isBodyProgress()   {}
func (progressiveEOF) isBodyProgress()     {}
func (progressiveChunked) isBodyProgress() {}

// readBody is the payload carried by stateReadingBody: the handler
// instance (nil once the handler has abandoned the request), the body
// cursor, the per-request deadline, and the in-progress response.
type readBody struct {
	machine  Handler
	deadline *time.Time
	progress bodyProgress
	resp     *Response
}

// processing is the payload carried by stateProcessing.
type processing struct {
	machine  Handler
	resp     *Response
	deadline *time.Time
}
