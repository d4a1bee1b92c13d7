package translate

import (
	"context"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/calebjordan/gca-chat-core/internal/signature"
)

func envelope(t *testing.T, body string) []byte {
	t.Helper()
	return []byte(body)
}

func TestTransformer_SimpleVisibleText_FirstChunkCarriesRole(t *testing.T) {
	tr := NewTransformer("id1", "gemini-2.5-pro", 1000, nil)
	chunks := tr.ProcessEnvelope(context.Background(), envelope(t, `{"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}}`))

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if gjson.GetBytes(chunks[0], "choices.0.delta.role").String() != "assistant" {
		t.Errorf("expected role assistant on first chunk")
	}
	if gjson.GetBytes(chunks[0], "choices.0.delta.content").String() != "hi" {
		t.Errorf("expected content hi, got %s", chunks[0])
	}

	final := tr.Finish()
	if gjson.GetBytes(final, "choices.0.finish_reason").String() != "stop" {
		t.Errorf("expected finish_reason stop, got %s", final)
	}
}

// TestTransformer_ThinkingTagSplitAcrossChunks is scenario S6: a <thinking>
// tag whose open marker, body, and close marker each straddle a different
// upstream text fragment.
func TestTransformer_ThinkingTagSplitAcrossChunks(t *testing.T) {
	tr := NewTransformer("id1", "gemini-2.5-pro", 1000, nil)
	ctx := context.Background()

	var allChunks [][]byte
	for _, text := range []string{"pre<thi", "nking>secret</thin", "king>post"} {
		env := []byte(`{"response":{"candidates":[{"content":{"parts":[{"text":` + jsonQuote(text) + `}]}}]}}`)
		allChunks = append(allChunks, tr.ProcessEnvelope(ctx, env)...)
	}
	allChunks = append(allChunks, tr.Finish())

	if len(allChunks) != 4 {
		t.Fatalf("expected 3 content/thinking chunks + 1 terminal, got %d: %v", len(allChunks), stringify(allChunks))
	}

	if gjson.GetBytes(allChunks[0], "choices.0.delta.content").String() != "pre" {
		t.Errorf("expected first chunk content 'pre', got %s", allChunks[0])
	}
	if gjson.GetBytes(allChunks[0], "choices.0.delta.role").String() != "assistant" {
		t.Errorf("expected role on first chunk")
	}

	if gjson.GetBytes(allChunks[1], "choices.0.delta.thinking").String() != "secret" {
		t.Errorf("expected second chunk thinking 'secret', got %s", allChunks[1])
	}

	if gjson.GetBytes(allChunks[2], "choices.0.delta.content").String() != "post" {
		t.Errorf("expected third chunk content 'post', got %s", allChunks[2])
	}

	if gjson.GetBytes(allChunks[3], "choices.0.finish_reason").String() != "stop" {
		t.Errorf("expected terminal finish_reason stop, got %s", allChunks[3])
	}
}

func TestTransformer_FunctionCall_MintsIDAndStoresSignature(t *testing.T) {
	cache := signature.New(nil, 10, 10, time.Hour, time.Hour)
	defer cache.Destroy()
	tr := NewTransformer("id1", "gemini-2.5-pro", 1000, cache)
	ctx := context.Background()

	tr.ProcessEnvelope(ctx, envelope(t, `{"response":{"candidates":[{"content":{"parts":[
		{"text":"reasoning...","thought":true,"thought_signature":"sig-abc"}
	]}}]}}`))
	chunks := tr.ProcessEnvelope(ctx, envelope(t, `{"response":{"candidates":[{"content":{"parts":[
		{"functionCall":{"name":"get_weather","args":{"city":"NYC"}}}
	]}}]}}`))

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	id := gjson.GetBytes(chunks[0], "choices.0.delta.tool_calls.0.id").String()
	if id == "" || id[:5] != "call_" {
		t.Errorf("expected a call_-prefixed id, got %q", id)
	}
	if gjson.GetBytes(chunks[0], "choices.0.delta.tool_calls.0.function.name").String() != "get_weather" {
		t.Errorf("expected function name get_weather, got %s", chunks[0])
	}
	if entry, ok := cache.Get(ctx, id); !ok || entry.Signature != "sig-abc" {
		t.Errorf("expected %s to be cached with sig-abc, got %+v ok=%v", id, entry, ok)
	}

	final := tr.Finish()
	if gjson.GetBytes(final, "choices.0.finish_reason").String() != "tool_calls" {
		t.Errorf("expected finish_reason tool_calls, got %s", final)
	}
}

func TestTransformer_UsageMetadata_AccumulatesOnFinish(t *testing.T) {
	tr := NewTransformer("id1", "gemini-2.5-pro", 1000, nil)
	ctx := context.Background()

	tr.ProcessEnvelope(ctx, envelope(t, `{"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5}}}`))
	final := tr.Finish()

	if gjson.GetBytes(final, "usage.prompt_tokens").Int() != 10 {
		t.Errorf("expected prompt_tokens 10, got %s", final)
	}
	if gjson.GetBytes(final, "usage.completion_tokens").Int() != 5 {
		t.Errorf("expected completion_tokens 5, got %s", final)
	}
	if gjson.GetBytes(final, "usage.total_tokens").Int() != 15 {
		t.Errorf("expected total_tokens 15, got %s", final)
	}
}

func TestTransformer_NotifyFallback_LeadingContentDelta(t *testing.T) {
	tr := NewTransformer("id1", "gemini-2.5-pro", 1000, nil)
	note := "Note: gemini-2.5-pro was rate-limited; this response was generated by gemini-2.0-flash instead."

	chunk := tr.NotifyFallback(note)
	if gjson.GetBytes(chunk, "choices.0.delta.role").String() != "assistant" {
		t.Error("expected the notification chunk to carry the first-chunk role framing")
	}
	if gjson.GetBytes(chunk, "choices.0.delta.content").String() != note {
		t.Errorf("expected notification content, got %s", chunk)
	}

	chunks := tr.ProcessEnvelope(context.Background(), envelope(t, `{"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}}`))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if gjson.GetBytes(chunks[0], "choices.0.delta.role").Exists() {
		t.Error("expected role framing to be consumed by the notification chunk, not repeated")
	}
}

func jsonQuote(s string) string {
	out := []byte{'"'}
	for _, r := range s {
		switch r {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		default:
			out = append(out, string(r)...)
		}
	}
	out = append(out, '"')
	return string(out)
}

func stringify(chunks [][]byte) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = string(c)
	}
	return out
}
