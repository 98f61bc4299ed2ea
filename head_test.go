package rotorhttp

import "testing"

func TestParseHeadBasic(t *testing.T) {
	raw := []byte("GET /foo?bar=1 HTTP/1.1\r\nHost: example.com\r\nX-Multi: a\r\nX-Multi: b\r\n\r\n")
	h, err := parseHead(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(h.Method) != "GET" {
		t.Errorf("got method %q, want GET", h.Method)
	}
	if string(h.URI) != "/foo?bar=1" {
		t.Errorf("got uri %q, want /foo?bar=1", h.URI)
	}
	if string(h.Version) != "HTTP/1.1" {
		t.Errorf("got version %q, want HTTP/1.1", h.Version)
	}
	if v := h.Get([]byte("host")); string(v) != "example.com" {
		t.Errorf("got Host %q, want example.com (case-insensitive lookup)", v)
	}
	if v := h.Get([]byte("X-Multi")); string(v) != "a" {
		t.Errorf("got first X-Multi %q, want a", v)
	}
}

func TestParseHeadMalformed(t *testing.T) {
	cases := []string{
		"",
		"GET\r\n\r\n",
		"GET /x\r\n\r\n",
		"GET /x BOGUS/9\r\n\r\n",
		"GET /x HTTP/1.1",
	}
	for _, raw := range cases {
		if _, err := parseHead([]byte(raw)); err == nil {
			t.Errorf("parseHead(%q): expected error, got none", raw)
		}
	}
}

func TestParseHeadIsHead(t *testing.T) {
	h, err := parseHead([]byte("HEAD / HTTP/1.1\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.IsHead() {
		t.Errorf("IsHead() = false for a HEAD request")
	}
}

func TestBodyKindFromHead(t *testing.T) {
	mk := func(method, headers string) *Head {
		h, err := parseHead([]byte(method + " / HTTP/1.1\r\n" + headers + "\r\n"))
		if err != nil {
			t.Fatalf("parseHead setup failed: %v", err)
		}
		return h
	}

	cases := []struct {
		name   string
		h      *Head
		kind   bodyKindCode
		length int
		isErr  bool
	}{
		{"GET no body headers", mk("GET", ""), bodyKindFixed, 0, false},
		{"POST content-length", mk("POST", "Content-Length: 42\r\n"), bodyKindFixed, 42, false},
		{"POST chunked", mk("POST", "Transfer-Encoding: chunked\r\n"), bodyKindChunked, 0, false},
		{"POST no framing header falls back to EOF", mk("POST", ""), bodyKindEOF, 0, false},
		{"GET no framing header stays Fixed(0)", mk("GET", ""), bodyKindFixed, 0, false},
		{"bad transfer-encoding", mk("POST", "Transfer-Encoding: gzip\r\n"), 0, 0, true},
		{"negative content-length", mk("POST", "Content-Length: -1\r\n"), 0, 0, true},
	}
	for _, c := range cases {
		fr, err := bodyKindFromHead(c.h)
		if c.isErr {
			if err == nil {
				t.Errorf("%s: expected error, got none", c.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
			continue
		}
		if fr.kind != c.kind || (c.kind == bodyKindFixed && fr.length != c.length) {
			t.Errorf("%s: got %+v, want kind=%v length=%d", c.name, fr, c.kind, c.length)
		}
	}
}

func TestWantsContinue(t *testing.T) {
	h, err := parseHead([]byte("PUT / HTTP/1.1\r\nExpect: 100-continue\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wantsContinue(h) {
		t.Errorf("wantsContinue() = false, want true")
	}

	h2, err := parseHead([]byte("PUT / HTTP/1.1\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wantsContinue(h2) {
		t.Errorf("wantsContinue() = true for a request with no Expect header")
	}
}

func TestMethodRecognizedAndHasConventionalBody(t *testing.T) {
	if !methodRecognized([]byte("GET")) {
		t.Errorf("GET should be recognized")
	}
	if methodRecognized([]byte("BREW")) {
		t.Errorf("BREW should not be recognized")
	}
	if !methodHasConventionalBody([]byte("POST")) {
		t.Errorf("POST should have a conventional body")
	}
	if methodHasConventionalBody([]byte("GET")) {
		t.Errorf("GET should not have a conventional body")
	}
}
