package translate

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/calebjordan/gca-chat-core/internal/signature"
)

// Usage is the accumulated token accounting for one stream, mirroring the
// upstream usageMetadata shape (prompt + candidates = total).
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// textEvent is one output of the thinking-tag splitter: either visible
// content or reasoning text, never both at once.
type textEvent struct {
	thinking bool
	text     string
}

const (
	openTag  = "<thinking>"
	closeTag = "</thinking>"
)

// Transformer holds the per-stream state described in spec §4.3. It is not
// safe for concurrent use; exactly one request owns one Transformer.
//
// Grounded on internal/translator/gemini/openai/chat-completions's
// ConvertGeminiResponseToOpenAI chunk-template idiom, replacing its
// one-shot stateless conversion with the explicit DFA and signature-capture
// state this spec requires.
type Transformer struct {
	id      string
	model   string
	created int64
	cache   *signature.Cache

	firstChunk  bool
	emittedTool bool
	usage       *Usage

	currentThoughtSignature string
	accumulatedThoughtText  strings.Builder
	accumulatedVisibleText  strings.Builder

	insideThinkingTag bool
	thinkingTagBuffer string
}

// NewTransformer constructs a Transformer for one stream. cache may be nil
// to disable signature persistence (e.g. in tests).
func NewTransformer(id, model string, created int64, cache *signature.Cache) *Transformer {
	return &Transformer{id: id, model: model, created: created, cache: cache, firstChunk: true}
}

// ProcessEnvelope consumes one upstream SSE envelope and returns zero or
// more downstream chunk JSON payloads, in emission order.
func (t *Transformer) ProcessEnvelope(ctx context.Context, envelopeRaw []byte) [][]byte {
	root := gjson.ParseBytes(envelopeRaw)

	if usage := root.Get("response.usageMetadata"); usage.Exists() {
		t.updateUsage(usage)
	}

	var chunks [][]byte
	parts := root.Get("response.candidates.0.content.parts")
	if !parts.IsArray() {
		return chunks
	}
	for _, part := range parts.Array() {
		chunks = append(chunks, t.processPart(ctx, part)...)
	}
	return chunks
}

func (t *Transformer) updateUsage(usage gjson.Result) {
	prompt := usage.Get("promptTokenCount").Int()
	completion := usage.Get("candidatesTokenCount").Int()
	t.usage = &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

func partSignature(part gjson.Result) string {
	if v := part.Get("thought_signature"); v.Exists() && v.String() != "" {
		return v.String()
	}
	if v := part.Get("thoughtSignature"); v.Exists() && v.String() != "" {
		return v.String()
	}
	return ""
}

func (t *Transformer) processPart(ctx context.Context, part gjson.Result) [][]byte {
	switch {
	case part.Get("text").Exists() && part.Get("thought").Bool():
		return t.processThoughtText(part)
	case part.Get("text").Exists():
		return t.processVisibleText(part.Get("text").String())
	case part.Get("functionCall").Exists():
		return [][]byte{t.processFunctionCall(ctx, part.Get("functionCall"))}
	default:
		return nil
	}
}

// processThoughtText implements §4.3 rule 1: upstream-labeled reasoning text.
func (t *Transformer) processThoughtText(part gjson.Result) [][]byte {
	if sig := partSignature(part); sig != "" {
		t.currentThoughtSignature = sig
	}
	text := part.Get("text").String()
	t.accumulatedThoughtText.WriteString(text)
	return [][]byte{t.buildChunk(deltaThinking(text, t.currentThoughtSignature), false)}
}

// processVisibleText implements §4.3 rule 2: the <thinking> splitter.
func (t *Transformer) processVisibleText(text string) [][]byte {
	events := t.splitThinking(text)
	chunks := make([][]byte, 0, len(events))
	for _, ev := range events {
		if ev.text == "" {
			continue
		}
		if ev.thinking {
			t.accumulatedThoughtText.WriteString(ev.text)
			chunks = append(chunks, t.buildChunk(deltaThinking(ev.text, t.currentThoughtSignature), false))
		} else {
			t.accumulatedVisibleText.WriteString(ev.text)
			chunks = append(chunks, t.buildChunk(deltaContent(ev.text), false))
		}
	}
	return chunks
}

// splitThinking is the explicit two-state DFA described in spec §4.3/§9: it
// never uses a regex, because a regex cannot reason about a tag split
// across two separate upstream text fragments.
func (t *Transformer) splitThinking(text string) []textEvent {
	text = t.thinkingTagBuffer + text
	t.thinkingTagBuffer = ""

	var events []textEvent
	for len(text) > 0 {
		if !t.insideThinkingTag {
			if idx := strings.Index(text, openTag); idx >= 0 {
				events = append(events, textEvent{text: text[:idx]})
				text = text[idx+len(openTag):]
				t.insideThinkingTag = true
				continue
			}
			if suffixLen := partialTagSuffix(text, openTag); suffixLen > 0 {
				events = append(events, textEvent{text: text[:len(text)-suffixLen]})
				t.thinkingTagBuffer = text[len(text)-suffixLen:]
				return events
			}
			events = append(events, textEvent{text: text})
			return events
		}

		if idx := strings.Index(text, closeTag); idx >= 0 {
			events = append(events, textEvent{thinking: true, text: text[:idx]})
			text = text[idx+len(closeTag):]
			t.insideThinkingTag = false
			continue
		}
		if suffixLen := partialTagSuffix(text, closeTag); suffixLen > 0 {
			events = append(events, textEvent{thinking: true, text: text[:len(text)-suffixLen]})
			t.thinkingTagBuffer = text[len(text)-suffixLen:]
			return events
		}
		events = append(events, textEvent{thinking: true, text: text})
		return events
	}
	return events
}

// partialTagSuffix returns the length of the longest proper suffix of text
// that is also a proper prefix of tag, or 0 if none matches. This detects a
// tag that has started but not yet completed at the end of the fragment.
func partialTagSuffix(text, tag string) int {
	maxLen := len(tag) - 1
	if maxLen > len(text) {
		maxLen = len(text)
	}
	for l := maxLen; l > 0; l-- {
		if strings.HasSuffix(text, tag[:l]) {
			return l
		}
	}
	return 0
}

// processFunctionCall implements §4.3 rule 3: mint a tool_call_id, persist
// the signature association, and emit the tool-call delta.
func (t *Transformer) processFunctionCall(ctx context.Context, fc gjson.Result) []byte {
	if sig := partSignature(fc); sig != "" && t.currentThoughtSignature == "" {
		t.currentThoughtSignature = sig
	}

	toolCallID := "call_" + uuid.NewString()
	t.emittedTool = true

	if t.cache != nil && t.currentThoughtSignature != "" {
		_ = t.cache.Store(ctx, toolCallID, t.currentThoughtSignature, t.accumulatedThoughtText.String())
	}

	name := fc.Get("name").String()
	args := fc.Get("args")
	argsJSON := "{}"
	if args.Exists() {
		argsJSON = args.Raw
	}
	return t.buildChunk(deltaToolCall(toolCallID, name, argsJSON), true)
}

// NotifyFallback emits a leading visible content delta carrying note, per
// spec §4.5: a streaming caller sees the fallback notice as ordinary
// assistant text in its own chunk, ahead of the first real chunk. Callers invoke this
// once, before the first ProcessEnvelope call, only when the Fallback
// Coordinator reports UsedFallback.
func (t *Transformer) NotifyFallback(note string) []byte {
	t.accumulatedVisibleText.WriteString(note)
	return t.buildChunk(deltaContent(note), false)
}

// Finish emits the single terminal chunk for this stream, per §4.3.
func (t *Transformer) Finish() []byte {
	finishReason := "stop"
	if t.emittedTool {
		finishReason = "tool_calls"
	}
	out := t.buildChunkWithFinish([]byte(`{}`), finishReason)
	usage := t.usage
	if usage == nil {
		// Upstream never sent usageMetadata on this stream; fall back to a
		// local estimate rather than omitting usage entirely.
		completion := estimateTokens(t.accumulatedVisibleText.String()) + estimateTokens(t.accumulatedThoughtText.String())
		usage = &Usage{CompletionTokens: completion, TotalTokens: completion}
	}
	out, _ = sjson.SetBytes(out, "usage.prompt_tokens", usage.PromptTokens)
	out, _ = sjson.SetBytes(out, "usage.completion_tokens", usage.CompletionTokens)
	out, _ = sjson.SetBytes(out, "usage.total_tokens", usage.TotalTokens)
	return out
}

func deltaContent(text string) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "content", text)
	return out
}

func deltaThinking(text, sig string) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "thinking", text)
	if sig != "" {
		out, _ = sjson.SetBytes(out, "signature", sig)
	}
	return out
}

func deltaToolCall(id, name, argsJSON string) []byte {
	out := []byte(`{"tool_calls":[{"index":0,"type":"function"}]}`)
	out, _ = sjson.SetBytes(out, "tool_calls.0.id", id)
	out, _ = sjson.SetBytes(out, "tool_calls.0.function.name", name)
	out, _ = sjson.SetBytes(out, "tool_calls.0.function.arguments", argsJSON)
	return out
}

// buildChunk wraps delta into a full downstream chunk envelope, applying
// first-chunk role framing exactly once per stream.
func (t *Transformer) buildChunk(delta []byte, isToolCall bool) []byte {
	return t.frame(delta, isToolCall, "")
}

func (t *Transformer) buildChunkWithFinish(delta []byte, finishReason string) []byte {
	return t.frame(delta, false, finishReason)
}

func (t *Transformer) frame(delta []byte, isToolCall bool, finishReason string) []byte {
	out := []byte(`{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":null}]}`)
	out, _ = sjson.SetBytes(out, "id", t.id)
	out, _ = sjson.SetBytes(out, "created", t.created)
	out, _ = sjson.SetBytes(out, "model", t.model)
	out, _ = sjson.SetRawBytes(out, "choices.0.delta", delta)

	if t.firstChunk {
		out, _ = sjson.SetBytes(out, "choices.0.delta.role", "assistant")
		if isToolCall {
			out, _ = sjson.SetRawBytes(out, "choices.0.delta.content", []byte("null"))
		}
		t.firstChunk = false
	}
	if finishReason != "" {
		out, _ = sjson.SetBytes(out, "choices.0.finish_reason", finishReason)
	}
	return out
}
