package sse

import (
	"io"
	"strings"
	"testing"
)

func TestParser_Next_StripsDataPrefix(t *testing.T) {
	p := New(strings.NewReader("data: {\"a\":1}\n\ndata: {\"b\":2}\n\n"))

	env, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(env.Raw) != `{"a":1}` {
		t.Errorf("expected {\"a\":1}, got %s", env.Raw)
	}

	env, err = p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(env.Raw) != `{"b":2}` {
		t.Errorf("expected {\"b\":2}, got %s", env.Raw)
	}

	if _, err = p.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestParser_Next_SkipsEventAndDoneLines(t *testing.T) {
	p := New(strings.NewReader("event: message\ndata: {\"a\":1}\n\ndata: [DONE]\n\n"))

	env, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(env.Raw) != `{"a":1}` {
		t.Errorf("expected {\"a\":1}, got %s", env.Raw)
	}

	if _, err = p.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after [DONE] sentinel, got %v", err)
	}
}

func TestReadAll_IteratesEveryEnvelope(t *testing.T) {
	p := New(strings.NewReader("data: {\"a\":1}\n\ndata: {\"a\":2}\n\ndata: {\"a\":3}\n\n"))

	var seen []string
	err := ReadAll(p, func(env Envelope) error {
		seen = append(seen, string(env.Raw))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 envelopes, got %d", len(seen))
	}
}

func TestParser_Next_AccumulatesMultiLineData(t *testing.T) {
	p := New(strings.NewReader("data: {\"a\":1,\ndata: \"b\":2}\n\n"))

	env, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(env.Raw) != "{\"a\":1,\n\"b\":2}" {
		t.Errorf("expected the two data: lines to accumulate, got %s", env.Raw)
	}

	if _, err = p.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestParser_Next_SkipsMalformedEnvelopeAndContinues(t *testing.T) {
	p := New(strings.NewReader("data: {\"a\":1\n\ndata: {\"b\":2}\n\n"))

	env, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(env.Raw) != `{"b":2}` {
		t.Errorf("expected the truncated envelope to be skipped and the next one returned, got %s", env.Raw)
	}

	if _, err = p.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestLooksLikeEventLine(t *testing.T) {
	if !LooksLikeEventLine("event: message") {
		t.Error("expected an event: line to be recognized")
	}
	if LooksLikeEventLine("data: {}") {
		t.Error("expected a data: line to not be recognized as an event line")
	}
}
