package rotorhttp

import (
	"time"
)

// Parser is the per-connection finite state machine described by the
// package: it drives a HandlerFactory/Handler pair through header
// parsing, body delivery and keep-alive, one event at a time. It is bound
// to exactly one connection's InputQueue/OutputQueue for its lifetime and
// must only ever be driven by a single goroutine.
type Parser struct {
	factory HandlerFactory
	cfg     *Context

	in  *InputQueue
	out *OutputQueue

	state parserState
	body  *readBody
	proc  *processing
}

// NewParser creates a Parser bound to a fresh pair of byte queues, ready
// to be driven from Start.
func NewParser(factory HandlerFactory, cfg *Context) *Parser {
	if cfg == nil {
		cfg = &Context{}
	}
	return &Parser{
		factory: factory,
		cfg:     cfg,
		in:      newInputQueue(),
		out:     newOutputQueue(),
		state:   stateIdle,
	}
}

// Input returns the connection's inbound byte queue, for the transport to
// Append freshly read bytes into before calling BytesArrived.
func (p *Parser) Input() *InputQueue { return p.in }

// Output returns the connection's outbound byte queue, for the transport
// to drain and report back via BytesFlushed.
func (p *Parser) Output() *OutputQueue { return p.out }

// State reports the parser's current top-level state. Exposed for
// observability/testing, not for transport control flow.
func (p *Parser) State() parserState { return p.state }

func (p *Parser) reset() {
	p.state = stateIdle
	p.body = nil
	p.proc = nil
	p.in.reset()
	p.out.reset()
}

// Release returns the parser's byte queues to their pool. Call once the
// connection is torn down for good; the Parser must not be used again
// afterward.
func (p *Parser) Release() {
	p.in.release()
	p.out.release()
}

// Start begins the connection in Idle and returns the first expectation.
func (p *Parser) Start(now time.Time) (Expectation, time.Time) {
	p.state = stateIdle
	exp, dline, _ := p.request(now)
	return exp, dline
}

// request computes the (expectation, deadline) pair for the current
// state; it never closes the connection on its own.
func (p *Parser) request(now time.Time) (Expectation, time.Time, bool) {
	exp := expectationFor(p.state, p.body, p.cfg)

	var reqDeadline *time.Time
	switch p.state {
	case stateReadingBody:
		reqDeadline = p.body.deadline
	case stateProcessing:
		reqDeadline = p.proc.deadline
	}
	dline := effectiveDeadline(p.cfg.byteDeadline(now), reqDeadline)
	return exp, dline, true
}

// flush transitions to DoneResponse: the response has been produced (or
// an error page written) and the connection now waits only for the
// output queue to drain before recycling or closing.
func (p *Parser) flush(now time.Time) (Expectation, time.Time, bool) {
	p.state = stateDoneResponse
	p.body = nil
	p.proc = nil
	return expectFlush, p.cfg.byteDeadline(now), true
}

// badRequest renders a 400 (unless the response already started) and
// transitions to DoneResponse; the connection always closes afterward
// since bad_request is only reached for non-keep-alive-eligible failures.
func (p *Parser) badRequest(now time.Time, resp *Response) (Expectation, time.Time, bool) {
	if !resp.IsStarted() {
		p.cfg.emitErrorPage(StatusBadRequest, resp)
	}
	resp.Finish()
	return p.flush(now)
}

// complete finishes a request: if the handler aborted (nil), the response
// must already be finished and the connection returns to Idle; otherwise
// the handler moves into Processing to produce its response
// asynchronously.
func (p *Parser) complete(now time.Time, m Handler, resp *Response, deadline *time.Time) (Expectation, time.Time, bool) {
	if m == nil {
		p.state = stateIdle
		p.body = nil
		p.proc = nil
		exp, dline, _ := p.request(now)
		return exp, dline, true
	}
	p.state = stateProcessing
	p.body = nil
	p.proc = &processing{machine: m, resp: resp, deadline: deadline}
	return expectSleep, effectiveDeadline(p.cfg.byteDeadline(now), deadline), true
}

// BytesArrived is the "bytes arrived" event: end is the byte count
// satisfying a Bytes expectation, or the offset at which a Delimiter
// expectation's needle begins.
func (p *Parser) BytesArrived(now time.Time, end int) (Expectation, time.Time, bool) {
	switch p.state {
	case stateIdle:
		p.state = stateReadHeaders
		exp, dline, open := p.request(now)
		return exp, dline, open

	case stateReadHeaders:
		rb, keepAlive, rejectStatus, headBytes := p.parseHeaders(end)
		if rb != nil {
			p.state = stateReadingBody
			p.body = rb
			exp, dline, open := p.request(now)
			return exp, dline, open
		}
		resp := newResponse(p.out, headBytes.isHead)
		if rejectStatus != 0 {
			p.cfg.emitErrorPage(rejectStatus, resp)
		}
		resp.Finish()
		if keepAlive {
			p.state = stateIdle
			exp, dline, open := p.request(now)
			return exp, dline, open
		}
		return p.flush(now)

	case stateReadingBody:
		return p.advanceBody(now, end)

	case stateProcessing:
		// Spurious: no input is expected while Processing; re-assert sleep.
		exp, dline, open := p.request(now)
		return exp, dline, open

	case stateDoneResponse:
		exp, dline, open := p.request(now)
		return exp, dline, open

	default:
		panic("rotorhttp: unknown parser state")
	}
}

type headMeta struct {
	isHead bool
}

// parseHeaders is the head parser adapter (spec §4.3): it turns a raw
// header block into a request body cursor, consulting the handler
// factory and computing the keep-alive eligibility of any failure.
//
// On success rb is non-nil and the other return values are unused. On
// failure rb is nil, keepAlive reports whether the connection may be
// recycled after the response and rejectStatus is the status code to
// render (0 renders no error page, so nothing is written for the request).
func (p *Parser) parseHeaders(end int) (rb *readBody, keepAlive bool, rejectStatus int, meta headMeta) {
	raw := p.in.Bytes()[:end+4]
	head, err := parseHead(raw)
	if err != nil {
		p.in.Consume(end + 4)
		return nil, false, StatusBadRequest, headMeta{}
	}
	meta.isHead = head.IsHead()
	methodDecidable := methodRecognized(head.Method)

	body, err := bodyKindFromHead(head)
	if err != nil {
		p.in.Consume(end + 4)
		return nil, false, StatusBadRequest, meta
	}
	if body.kind == bodyKindUpgrade {
		p.in.Consume(end + 4)
		return nil, false, StatusBadRequest, meta
	}

	accepted, status := p.factory.HeadersReceived(head)
	if accepted == nil {
		p.in.Consume(end + 4)
		// No handler was ever created for this request, so the connection
		// always closes after the rejection response, regardless of how
		// well-formed the request otherwise was.
		return nil, false, status, meta
	}
	if accepted.Mode.cap >= p.cfg.MaxBufSize() && !accepted.Mode.progressive {
		panic(ErrHandlerBufferTooLarge)
	}

	if body.kind == bodyKindFixed && body.length >= accepted.Mode.cap && !accepted.Mode.progressive {
		p.in.Consume(end + 4)
		keepAlive := keepAliveEligible(methodDecidable, body, true)
		return nil, keepAlive, StatusPayloadTooLarge, meta
	}

	p.in.Consume(end + 4)

	if wantsContinue(head) {
		p.out.AppendString(string(head.Version) + " 100 Continue\r\n\r\n")
	}

	resp := newResponse(p.out, meta.isHead)
	return &readBody{
		machine:  accepted.Handler,
		deadline: accepted.Deadline,
		progress: startBody(accepted.Mode, body),
		resp:     resp,
	}, false, 0, meta
}

func startBody(mode DeliveryMode, body bodyFraming) bodyProgress {
	switch {
	case !mode.progressive && body.kind == bodyKindFixed:
		return bufferFixed(body.length)
	case !mode.progressive && body.kind == bodyKindChunked:
		return bufferChunked{limit: mode.cap}
	case !mode.progressive && body.kind == bodyKindEOF:
		return bufferEOF(mode.cap)
	case mode.progressive && body.kind == bodyKindFixed:
		return progressiveFixed{hint: mode.hint, remaining: body.length}
	case mode.progressive && body.kind == bodyKindChunked:
		return progressiveChunked{hint: mode.hint}
	case mode.progressive && body.kind == bodyKindEOF:
		return progressiveEOF(mode.hint)
	default:
		panic("rotorhttp: unsupported body framing")
	}
}

// advanceBody is the body-progress advancement logic (spec §4.2).
func (p *Parser) advanceBody(now time.Time, end int) (Expectation, time.Time, bool) {
	rb := p.body
	resp := rb.resp
	inp := p.in

	switch v := rb.progress.(type) {
	case bufferFixed:
		x := int(v)
		m := rb.machine
		if m != nil {
			m = m.RequestReceived(inp.Bytes()[:x], resp)
		}
		inp.Consume(x)
		return p.complete(now, m, resp, rb.deadline)

	case bufferEOF:
		// Only ever advanced via the EndOfStream exception path.
		panic("rotorhttp: BufferEOF cannot advance on bytes arrived")

	case bufferChunked:
		if v.chunkRemaining == 0 {
			return p.advanceChunkSizeLine(now, rb, v.limit, v.accumulated, end, v.seenChunk, false)
		}
		if v.accumulated+v.chunkRemaining != end {
			panic("rotorhttp: chunk byte count mismatch")
		}
		rb.progress = bufferChunked{limit: v.limit, accumulated: v.accumulated + v.chunkRemaining, chunkRemaining: 0, seenChunk: true}
		exp, dline, open := p.request(now)
		return exp, dline, open

	case progressiveFixed:
		real := minInt(inp.Len(), v.remaining)
		m := rb.machine
		if m != nil {
			m = m.RequestChunk(inp.Bytes()[:real], resp)
		}
		inp.Consume(real)
		remaining := v.remaining - real
		if remaining == 0 {
			if m != nil {
				m = m.RequestEnd(resp)
			}
			return p.complete(now, m, resp, rb.deadline)
		}
		rb.progress = progressiveFixed{hint: v.hint, remaining: remaining}
		exp, dline, open := p.request(now)
		return exp, dline, open

	case progressiveEOF:
		ln := inp.Len()
		m := rb.machine
		if m != nil && ln > 0 {
			m = m.RequestChunk(inp.Bytes()[:ln], resp)
		}
		inp.Consume(ln)
		rb.machine = m
		exp, dline, open := p.request(now)
		return exp, dline, open

	case progressiveChunked:
		if v.chunkRemaining == 0 {
			return p.advanceChunkSizeLine(now, rb, 0, v.accumulated, end, v.seenChunk, true)
		}
		ln := minInt(v.accumulated+v.chunkRemaining, inp.Len())
		left := v.chunkRemaining - (ln - v.accumulated)
		if ln < v.hint && left > 0 {
			rb.progress = progressiveChunked{hint: v.hint, accumulated: ln, chunkRemaining: left, seenChunk: true}
			exp, dline, open := p.request(now)
			return exp, dline, open
		}
		m := rb.machine
		if m != nil {
			m = m.RequestChunk(inp.Bytes()[:ln], resp)
		}
		inp.Consume(ln)
		rb.machine = m
		rb.progress = progressiveChunked{hint: v.hint, accumulated: 0, chunkRemaining: left, seenChunk: true}
		exp, dline, open := p.request(now)
		return exp, dline, open

	default:
		panic("rotorhttp: unknown body progress")
	}
}

// advanceChunkSizeLine handles the chunk-size-line half of BufferChunked
// and ProgressiveChunked: end is the offset of the delimiting "\r\n"
// relative to the queue front, i.e. the slice [off:end] is the size line
// (with optional ";ext").
func (p *Parser) advanceChunkSizeLine(now time.Time, rb *readBody, limit, off, end int, seenChunk, progressive bool) (Expectation, time.Time, bool) {
	inp := p.in
	resp := rb.resp

	// A zero-length line once at least one chunk has already been parsed is
	// not a size line at all: it is the CRLF trailing that chunk's data,
	// which the delimiter search finds before the real size line that
	// follows it. Buffered bodies never consume queue bytes until the
	// whole body completes, so this lands at off>0; progressive bodies
	// consume each chunk's bytes as they are delivered, so the same case
	// lands at off==0 instead. Either way, strip it and wait for the next
	// cycle to find the genuine size line.
	if seenChunk && end == off {
		inp.RemoveRange(off, off+2)
		exp, dline, open := p.request(now)
		return exp, dline, open
	}

	line := inp.Bytes()[off:end]

	size, ok := parseChunkSizeLine(line)
	if !ok {
		inp.Consume(end + 2)
		if rb.machine != nil {
			rb.machine.BadRequest(resp)
		}
		return p.badRequest(now, resp)
	}

	if size == 0 {
		// Both delivery modes signal completion the same way here: the
		// bytes accumulated below off (buffered: the whole body;
		// progressive: none, since every exhausted chunk has already gone
		// out through RequestChunk) are handed to one last RequestReceived
		// call.
		inp.RemoveRange(off, end+2)
		m := rb.machine
		if m != nil {
			m = m.RequestReceived(inp.Bytes()[:off], resp)
		}
		inp.Consume(off)
		return p.complete(now, m, resp, rb.deadline)
	}

	if !progressive && off+size > limit {
		inp.Consume(end + 2)
		if rb.machine != nil {
			rb.machine.BadRequest(resp)
		}
		return p.badRequest(now, resp)
	}

	inp.RemoveRange(off, end+2)
	if progressive {
		rb.progress = progressiveChunked{hint: rb.progress.(progressiveChunked).hint, accumulated: off, chunkRemaining: size, seenChunk: true}
	} else {
		rb.progress = bufferChunked{limit: limit, accumulated: off, chunkRemaining: size, seenChunk: true}
	}
	exp, dline, open := p.request(now)
	return exp, dline, open
}

// BytesFlushed is the "bytes flushed" event.
func (p *Parser) BytesFlushed(now time.Time) (Expectation, time.Time, bool) {
	if p.state == stateDoneResponse {
		return Expectation{}, time.Time{}, false
	}
	exp, dline, open := p.request(now)
	return exp, dline, open
}

// TakeException is the "exception" event.
func (p *Parser) TakeException(now time.Time, exc Exception) (Expectation, time.Time, bool) {
	switch exc.Kind {
	case ExcLimitReached:
		switch p.state {
		case stateReadHeaders:
			resp := newResponse(p.out, false)
			p.cfg.emitErrorPage(StatusBadRequest, resp)
			resp.Finish()
			return p.flush(now)
		case stateReadingBody:
			rb := p.body
			switch rb.progress.(type) {
			case bufferChunked, progressiveChunked:
			default:
				panic("rotorhttp: LimitReached outside a chunk-size line")
			}
			if rb.machine != nil {
				rb.machine.BadRequest(rb.resp)
			}
			return p.badRequest(now, rb.resp)
		default:
			panic("rotorhttp: LimitReached in an unexpected state")
		}

	case ExcEndOfStream:
		switch p.state {
		case stateReadingBody:
			rb := p.body
			resp := rb.resp
			switch prog := rb.progress.(type) {
			case bufferEOF:
				_ = prog
				m := rb.machine
				if m != nil {
					m = m.RequestReceived(p.in.Bytes(), resp)
				}
				p.in.Consume(p.in.Len())
				return p.complete(now, m, resp, rb.deadline)
			case progressiveEOF:
				m := rb.machine
				if m != nil && p.in.Len() > 0 {
					m = m.RequestChunk(p.in.Bytes(), resp)
				}
				if m != nil {
					m = m.RequestEnd(resp)
				}
				return p.complete(now, m, resp, rb.deadline)
			default:
				// Truncated request: the peer closed before the declared
				// framing (fixed length or chunked) was satisfied.
				if rb.machine != nil {
					rb.machine.BadRequest(resp)
				}
				return p.badRequest(now, resp)
			}
		case stateProcessing:
			panic("rotorhttp: EndOfStream while Processing")
		default:
			return Expectation{}, time.Time{}, false
		}

	case ExcReadError, ExcWriteError:
		return Expectation{}, time.Time{}, false

	default:
		panic("rotorhttp: unknown exception kind")
	}
}

// Timeout is the deadline-expiry event: the spec leaves this
// implementation-defined in the source it was distilled from, and directs
// implementers to tear the connection down without attempting a response
// (the handler, if any, is abandoned; nothing it does after this point
// may resume I/O on the connection).
func (p *Parser) Timeout(now time.Time) (Expectation, time.Time, bool) {
	return Expectation{}, time.Time{}, false
}

// Wakeup is the external-wakeup event, used to resume a Handler that
// suspended the event loop (Processing) or that wants an opportunistic
// look at body bytes already buffered (ReadingBody). Idle/ReadHeaders/
// DoneResponse have nothing to wake up for and simply re-assert their
// current expectation.
func (p *Parser) Wakeup(now time.Time) (Expectation, time.Time, bool) {
	switch p.state {
	case stateIdle, stateReadHeaders, stateDoneResponse:
		exp, dline, open := p.request(now)
		return exp, dline, open

	case stateReadingBody:
		rb := p.body
		if rb.machine == nil || p.in.Len() == 0 {
			exp, dline, open := p.request(now)
			return exp, dline, open
		}
		switch rb.progress.(type) {
		case progressiveEOF:
			rb.machine = rb.machine.RequestChunk(p.in.Bytes(), rb.resp)
			p.in.Consume(p.in.Len())
		}
		exp, dline, open := p.request(now)
		return exp, dline, open

	case stateProcessing:
		if p.proc.resp.IsComplete() {
			return p.complete(now, nil, p.proc.resp, p.proc.deadline)
		}
		return expectSleep, effectiveDeadline(p.cfg.byteDeadline(now), p.proc.deadline), true

	default:
		panic("rotorhttp: unknown parser state")
	}
}
