package rotorhttp

import "testing"

func TestParseChunkSizeLine(t *testing.T) {
	cases := []struct {
		line string
		size int
		ok   bool
	}{
		{"5", 5, true},
		{"A", 10, true},
		{"ff", 255, true},
		{"1a2b", 0x1a2b, true},
		{"5;foo=bar", 5, true},
		{"0", 0, true},
		{"0;ignored-extension", 0, true},
		{"", 0, false},
		{"zz", 0, false},
		{"5 ", 0, false},
	}
	for _, c := range cases {
		size, ok := parseChunkSizeLine([]byte(c.line))
		if ok != c.ok || (ok && size != c.size) {
			t.Errorf("parseChunkSizeLine(%q) = (%d, %v), want (%d, %v)", c.line, size, ok, c.size, c.ok)
		}
	}
}

// TestChunkedThreeChunks drives a chunked body with three non-trivial
// chunks through the parser with a hint small enough that each chunk
// flushes on its own, exercising the chunk-size-line search that
// previously misparsed every chunk past the first: the delimiter search
// for the next size line immediately re-found the just-consumed chunk's
// own trailing CRLF at zero distance.
func TestChunkedThreeChunks(t *testing.T) {
	f := &factory{mode: Progressive(1)}
	p := NewParser(f, &Context{})
	req := "POST /x HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\none\r\n3\r\ntwo\r\n5\r\nthree\r\n0\r\n\r\n"
	drive(t, p, []byte(req))

	if f.h == nil {
		t.Fatalf("handler was never created")
	}
	if len(f.h.chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %q", len(f.h.chunks), f.h.chunks)
	}
	got := string(f.h.chunks[0]) + string(f.h.chunks[1]) + string(f.h.chunks[2])
	if got != "onetwothree" {
		t.Fatalf("got %q, want %q", got, "onetwothree")
	}
	if len(f.h.received) != 0 {
		t.Fatalf("got a non-empty terminal call %q, want every byte already flushed via RequestChunk", f.h.received)
	}
}

// TestChunkedBufferedSingleChunk exercises the Buffered delivery mode over
// chunked framing, which accumulates into one RequestReceived call instead
// of per-chunk RequestChunk calls.
func TestChunkedBufferedSingleChunk(t *testing.T) {
	f := &factory{mode: Buffered(1024)}
	p := NewParser(f, &Context{})
	req := "POST /x HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nabcd\r\n0\r\n\r\n"
	drive(t, p, []byte(req))

	if f.h == nil {
		t.Fatalf("handler was never created")
	}
	if string(f.h.received) != "abcd" {
		t.Fatalf("got body %q, want %q", f.h.received, "abcd")
	}
}

// TestChunkedWithExtension verifies that a chunk-extension after a ";" is
// ignored rather than treated as part of the size or as malformed framing.
func TestChunkedWithExtension(t *testing.T) {
	f := &factory{mode: Progressive(1024)}
	p := NewParser(f, &Context{})
	req := "POST /x HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5;foo=bar\r\nhello\r\n0\r\n\r\n"
	drive(t, p, []byte(req))

	if f.h == nil {
		t.Fatalf("handler was never created")
	}
	got := string(bytesJoin(f.h.chunks))
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func bytesJoin(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
