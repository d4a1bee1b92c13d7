package translate

import (
	"context"
	"testing"

	"github.com/tidwall/gjson"
)

func TestTranslateNonStreamResponse_TextAndUsage(t *testing.T) {
	in := `{"response":{"candidates":[{"content":{"parts":[{"text":"hello"}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2}}}`
	out := TranslateNonStreamResponse(context.Background(), nil, "id1", "gemini-2.5-pro", 1000, []byte(in))

	if gjson.GetBytes(out, "choices.0.message.content").String() != "hello" {
		t.Errorf("unexpected content: %s", out)
	}
	if gjson.GetBytes(out, "choices.0.finish_reason").String() != "stop" {
		t.Errorf("expected finish_reason stop, got %s", out)
	}
	if gjson.GetBytes(out, "usage.total_tokens").Int() != 5 {
		t.Errorf("expected total_tokens 5, got %s", out)
	}
}

func TestTranslateNonStreamResponse_ReasoningAndToolCalls(t *testing.T) {
	in := `{"response":{"candidates":[{"content":{"parts":[
		{"text":"thinking it through","thought":true,"thought_signature":"sig-xyz"},
		{"functionCall":{"name":"lookup","args":{"q":"weather"}}}
	]}}]}}`
	out := TranslateNonStreamResponse(context.Background(), nil, "id1", "gemini-2.5-pro", 1000, []byte(in))

	if gjson.GetBytes(out, "choices.0.message.thinking").String() != "thinking it through" {
		t.Errorf("unexpected thinking: %s", out)
	}
	if gjson.GetBytes(out, "choices.0.message.signature").String() != "sig-xyz" {
		t.Errorf("unexpected signature: %s", out)
	}
	if gjson.GetBytes(out, "choices.0.message.tool_calls.0.function.name").String() != "lookup" {
		t.Errorf("expected tool call lookup, got %s", out)
	}
	if gjson.GetBytes(out, "choices.0.finish_reason").String() != "tool_calls" {
		t.Errorf("expected finish_reason tool_calls, got %s", out)
	}
}

func TestAttachFallbackNotification(t *testing.T) {
	in := `{"response":{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}}`
	out := TranslateNonStreamResponse(context.Background(), nil, "id1", "gemini-2.5-pro", 1000, []byte(in))

	note := "Note: gemini-2.5-pro was rate-limited; this response was generated by gemini-2.0-flash instead."
	out = AttachFallbackNotification(out, note)

	if gjson.GetBytes(out, "gca_fallback_notification").String() != note {
		t.Errorf("expected fallback notification field, got %s", out)
	}
	if gjson.GetBytes(out, "choices.0.message.content").String() != "hello" {
		t.Errorf("expected content to be unaffected, got %s", out)
	}
}

func TestAttachFallbackNotification_EmptyNoteNoOp(t *testing.T) {
	in := `{"response":{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}}`
	out := TranslateNonStreamResponse(context.Background(), nil, "id1", "gemini-2.5-pro", 1000, []byte(in))

	if got := AttachFallbackNotification(out, ""); string(got) != string(out) {
		t.Errorf("expected no-op for an empty note, got %s", got)
	}
}
