package rotorhttp

import (
	"bytes"
	"errors"
	"strconv"
)

var errMalformedHead = errors.New("rotorhttp: malformed request head")

// HeaderField is one parsed "Key: Value" header line. Continuation lines
// (obs-fold) are already joined into Value by the scanner.
type HeaderField struct {
	Key   []byte
	Value []byte
}

// Head is the structured form of a parsed request head: the request line
// plus headers. It is handed to HandlerFactory.HeadersReceived unchanged
// for the lifetime of the request.
type Head struct {
	Method  []byte
	URI     []byte
	Version []byte
	Headers []HeaderField
}

// Get returns the value of the first header matching name
// (case-insensitive), or nil if absent.
func (h *Head) Get(name []byte) []byte {
	for i := range h.Headers {
		if bytes.EqualFold(h.Headers[i].Key, name) {
			return h.Headers[i].Value
		}
	}
	return nil
}

// IsHead reports whether the request method is HEAD.
func (h *Head) IsHead() bool {
	return bytes.Equal(h.Method, strHead)
}

// methodRecognized reports whether the request-line method token is one
// the server knows how to reason about for keep-alive purposes. An
// unrecognized method makes "does this response carry a body" undecidable,
// which the keep-alive policy treats as fatal to connection reuse.
func methodRecognized(method []byte) bool {
	switch string(method) {
	case "GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "TRACE", "CONNECT":
		return true
	default:
		return false
	}
}

func methodHasConventionalBody(method []byte) bool {
	switch string(method) {
	case "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}

// parseHead parses the request line and headers out of a raw head block
// (terminated by, and including, CRLFCRLF).
func parseHead(raw []byte) (*Head, error) {
	lineEnd := bytes.IndexByte(raw, '\n')
	if lineEnd < 0 {
		return nil, errMalformedHead
	}
	line := raw[:lineEnd+1]
	rest := raw[lineEnd+1:]

	line = bytes.TrimSuffix(line, strCRLF)
	if bytes.HasSuffix(line, []byte("\r")) {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return nil, errMalformedHead
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return nil, errMalformedHead
	}
	sp2 := bytes.LastIndexByte(line, ' ')
	if sp2 <= sp1 {
		return nil, errMalformedHead
	}

	method := line[:sp1]
	uri := line[sp1+1 : sp2]
	version := line[sp2+1:]
	if len(method) == 0 || len(uri) == 0 || !isHTTPVersion(version) {
		return nil, errMalformedHead
	}

	h := &Head{
		Method:  append([]byte(nil), method...),
		URI:     append([]byte(nil), uri...),
		Version: append([]byte(nil), version...),
	}

	sc := headerScanner{b: rest}
	for sc.next() {
		h.Headers = append(h.Headers, HeaderField{
			Key:   append([]byte(nil), sc.key...),
			Value: append([]byte(nil), sc.value...),
		})
	}
	if sc.err != nil {
		return nil, sc.err
	}
	return h, nil
}

func isHTTPVersion(v []byte) bool {
	return bytes.Equal(v, strHTTP10) || bytes.Equal(v, strHTTP11)
}

// bodyKindCode discriminates wire-level body framing.
type bodyKindCode int

const (
	bodyKindFixed bodyKindCode = iota
	bodyKindChunked
	bodyKindEOF
	bodyKindUpgrade
)

type bodyFraming struct {
	kind   bodyKindCode
	length int // valid when kind == bodyKindFixed
}

// bodyKindFromHead determines the wire body framing from Content-Length
// and Transfer-Encoding. A request declaring neither is assumed to carry
// no body, UNLESS its method conventionally does (POST/PUT/PATCH), in
// which case it is framed as EOF-terminated: some HTTP/1.0 clients send a
// body and signal its end purely by closing the connection.
func bodyKindFromHead(h *Head) (bodyFraming, error) {
	if te := h.Get(strTransferEncoding); te != nil {
		if !bytes.EqualFold(bytes.TrimSpace(te), strChunked) {
			return bodyFraming{}, errMalformedHead
		}
		return bodyFraming{kind: bodyKindChunked}, nil
	}
	if cl := h.Get(strContentLength); cl != nil {
		n, err := strconv.Atoi(string(bytes.TrimSpace(cl)))
		if err != nil || n < 0 {
			return bodyFraming{}, errMalformedHead
		}
		return bodyFraming{kind: bodyKindFixed, length: n}, nil
	}
	if methodHasConventionalBody(h.Method) {
		return bodyFraming{kind: bodyKindEOF}, nil
	}
	return bodyFraming{kind: bodyKindFixed, length: 0}, nil
}

// wantsContinue reports whether the client sent Expect: 100-continue.
func wantsContinue(h *Head) bool {
	v := h.Get(strExpect)
	return v != nil && bytes.EqualFold(bytes.TrimSpace(v), str100Continue)
}
