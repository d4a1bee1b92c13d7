// Package sse parses a Server-Sent Events byte stream into a sequence of
// JSON envelopes, independent of how the underlying reads are chunked.
//
// Grounded on internal/runtime/executor/gemini_executor.go's ExecuteStream
// scanner loop: a bufio.Scanner with a generous buffer, "data: " prefix
// stripping, and a final parse pass once the stream ends. That loop reads
// whole lines at a time because net/http already buffers at least one
// newline's worth of body; this package makes the same guarantee explicit
// with a blank-line-terminated accumulator so a caller can feed it raw,
// arbitrarily-sized byte chunks (as arrive over a real network connection)
// without assuming line alignment.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/calebjordan/gca-chat-core/internal/apierrors"
)

// scannerBuffer matches the teacher's streamScannerBuffer: large enough
// that a single SSE line never overflows bufio.Scanner's internal buffer.
const scannerBuffer = 52_428_800

// Envelope is one parsed `data: ...` payload from the stream.
type Envelope struct {
	// Raw is the JSON payload with the "data:" prefix and surrounding
	// whitespace stripped.
	Raw []byte
}

// Parser reads an SSE byte stream and yields envelopes one at a time. Per
// spec §4.2, consecutive "data:" lines accumulate (joined by "\n") until a
// blank line terminates the envelope; the accumulated text is then parsed
// as JSON.
type Parser struct {
	scanner *bufio.Scanner
	buf     bytes.Buffer
	done    bool
}

// New wraps r as a Parser.
func New(r io.Reader) *Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, scannerBuffer)
	return &Parser{scanner: scanner}
}

// Next advances to the next valid data envelope. It returns io.EOF when the
// stream is exhausted (including on the "[DONE]" sentinel). A malformed
// accumulated payload is logged and skipped rather than treated as fatal,
// per spec §4.2; Next only returns a non-nil, non-EOF error for a
// scanner-level failure (e.g. a buffer overflow or an underlying read
// error).
func (p *Parser) Next() (Envelope, error) {
	if p.done {
		return Envelope{}, io.EOF
	}

	for p.scanner.Scan() {
		line := bytes.TrimRight(p.scanner.Bytes(), "\r")
		trimmed := bytes.TrimSpace(line)

		switch {
		case len(trimmed) == 0:
			if env, ok := p.finalize(); ok {
				return env, nil
			}
		case bytes.HasPrefix(trimmed, []byte("event:")):
			// framing line, not a payload
		case bytes.HasPrefix(trimmed, []byte("data:")):
			payload := bytes.TrimSpace(trimmed[len("data:"):])
			if bytes.Equal(payload, []byte("[DONE]")) {
				p.done = true
				return Envelope{}, io.EOF
			}
			if p.buf.Len() > 0 {
				p.buf.WriteByte('\n')
			}
			p.buf.Write(payload)
		}
	}

	if err := p.scanner.Err(); err != nil {
		return Envelope{}, &apierrors.TransportError{Op: "sse scan", Err: err}
	}

	p.done = true
	if env, ok := p.finalize(); ok {
		return env, nil
	}
	return Envelope{}, io.EOF
}

// finalize parses the accumulated "data:" text as JSON, per spec §4.2. It
// returns false both when there is nothing accumulated and when the
// accumulated text fails to parse; in the latter case it logs and
// constructs an apierrors.SSEParseError rather than propagating it, since a
// malformed envelope mid-stream is non-fatal.
func (p *Parser) finalize() (Envelope, bool) {
	if p.buf.Len() == 0 {
		return Envelope{}, false
	}
	raw := bytes.Clone(p.buf.Bytes())
	p.buf.Reset()

	if !gjson.ValidBytes(raw) {
		parseErr := &apierrors.SSEParseError{Line: string(raw), Err: errors.New("invalid json")}
		log.WithError(parseErr).Warn("sse: dropping malformed envelope")
		return Envelope{}, false
	}
	return Envelope{Raw: raw}, true
}

// ReadAll drains every envelope from p, calling fn for each. A malformed
// envelope is already filtered out by Next/finalize; ReadAll's job is
// purely iteration until io.EOF or a scanner-level error.
func ReadAll(p *Parser, fn func(Envelope) error) error {
	for {
		env, err := p.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if fnErr := fn(env); fnErr != nil {
			log.WithError(fnErr).Warn("sse: envelope handler returned an error, continuing")
		}
	}
}

// LooksLikeEventLine reports whether a raw line is an SSE "event:" framing
// line rather than a data payload, exposed for callers doing their own
// line-level branching.
func LooksLikeEventLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "event:")
}
