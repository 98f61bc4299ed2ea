package rotorhttp

import "time"

// ExpectationKind discriminates the shape of input the transport should
// wait for before re-invoking the parser.
type ExpectationKind int

const (
	// ExpectBytes means "deliver a BytesArrived event once N bytes
	// (counted from the front of the input queue) are available".
	ExpectBytes ExpectationKind = iota
	// ExpectDelimiter means "deliver a BytesArrived event once Delim is
	// found at or after Offset, scanning no more than Max bytes past
	// Offset before raising LimitReached".
	ExpectDelimiter
	// ExpectFlush means "deliver a BytesFlushed event once the output
	// queue is drained to the socket".
	ExpectFlush
	// ExpectSleep means "do not resume on input or output; wait for an
	// external Wakeup".
	ExpectSleep
)

// Expectation tells the transport what it should wait for before handing
// control back to the parser.
type Expectation struct {
	Kind   ExpectationKind
	Offset int    // ExpectBytes: bytes needed. ExpectDelimiter: scan start.
	Delim  []byte // ExpectDelimiter only.
	Max    int    // ExpectDelimiter only: max bytes past Offset before LimitReached.
}

func expectBytes(n int) Expectation {
	return Expectation{Kind: ExpectBytes, Offset: n}
}

func expectDelimiter(offset int, delim []byte, max int) Expectation {
	return Expectation{Kind: ExpectDelimiter, Offset: offset, Delim: delim, Max: max}
}

var expectFlush = Expectation{Kind: ExpectFlush}
var expectSleep = Expectation{Kind: ExpectSleep}

// expectationFor computes the next transport expectation for the given
// parser state, per the table in the parser's body-progress design: each
// state/progress pair maps to exactly one expectation shape.
func expectationFor(state parserState, body *readBody, cfg *Context) Expectation {
	switch state {
	case stateIdle:
		return expectBytes(1)
	case stateReadHeaders:
		return expectDelimiter(0, strCRLFCRLF, cfg.MaxHeadersSize())
	case stateProcessing:
		return expectSleep
	case stateDoneResponse:
		return expectFlush
	case stateReadingBody:
		return expectationForBody(body.progress, cfg)
	default:
		panic("rotorhttp: unknown parser state")
	}
}

func expectationForBody(p bodyProgress, cfg *Context) Expectation {
	switch v := p.(type) {
	case bufferFixed:
		return expectBytes(int(v))
	case bufferEOF:
		return expectBytes(int(v))
	case bufferChunked:
		if v.chunkRemaining == 0 {
			return expectDelimiter(v.accumulated, strCRLF, cfg.MaxChunkHead())
		}
		return expectBytes(v.accumulated + v.chunkRemaining)
	case progressiveFixed:
		return expectBytes(minInt(v.hint, v.remaining))
	case progressiveEOF:
		return expectBytes(int(v))
	case progressiveChunked:
		if v.chunkRemaining == 0 {
			return expectDelimiter(v.accumulated, strCRLF, cfg.MaxChunkHead())
		}
		return expectBytes(minInt(v.hint, v.accumulated+v.chunkRemaining))
	default:
		panic("rotorhttp: unknown body progress")
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// effectiveDeadline is the earlier of the connection's rolling idle-byte
// deadline and any per-request deadline the handler negotiated.
func effectiveDeadline(byteDeadline time.Time, reqDeadline *time.Time) time.Time {
	if reqDeadline == nil {
		return byteDeadline
	}
	if reqDeadline.Before(byteDeadline) {
		return *reqDeadline
	}
	return byteDeadline
}
