package rotorhttp

import "testing"

func TestKeepAliveEligible(t *testing.T) {
	cases := []struct {
		name            string
		methodDecidable bool
		body            bodyFraming
		responseOK      bool
		want            bool
	}{
		{"clean GET with empty body", true, bodyFraming{kind: bodyKindFixed, length: 0}, true, true},
		{"method not decidable", false, bodyFraming{kind: bodyKindFixed, length: 0}, true, false},
		{"non-empty declared body", true, bodyFraming{kind: bodyKindFixed, length: 10}, true, false},
		{"chunked body", true, bodyFraming{kind: bodyKindChunked}, true, false},
		{"EOF-framed body", true, bodyFraming{kind: bodyKindEOF}, true, false},
		{"response not written", true, bodyFraming{kind: bodyKindFixed, length: 0}, false, false},
	}
	for _, c := range cases {
		got := keepAliveEligible(c.methodDecidable, c.body, c.responseOK)
		if got != c.want {
			t.Errorf("%s: keepAliveEligible(...) = %v, want %v", c.name, got, c.want)
		}
	}
}

// TestConnectionReuseAcrossTwoRequests drives two complete requests through
// a single Parser instance back to back, confirming the connection is
// recycled into Idle between them rather than closed.
func TestConnectionReuseAcrossTwoRequests(t *testing.T) {
	f := &factory{mode: Buffered(1024)}
	p := NewParser(f, &Context{})
	req1 := "GET /first HTTP/1.1\r\nHost: h\r\n\r\n"
	req2 := "GET /second HTTP/1.1\r\nHost: h\r\n\r\n"
	drive(t, p, []byte(req1+req2))

	out := p.Output().Pending()
	count := 0
	for i := 0; i+len("200 OK") <= len(out); i++ {
		if string(out[i:i+len("200 OK")]) == "200 OK" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("got %d responses in the output queue, want 2: %q", count, out)
	}
	if p.State() != stateIdle {
		t.Fatalf("got state %v, want Idle after both requests complete", p.State())
	}
}
