package translate

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/calebjordan/gca-chat-core/internal/signature"
)

// TranslateNonStreamResponse assembles a single non-streaming chat.completion
// response from one complete upstream generateContent response, applying
// the Transformer's thought-part and function-call rules but accumulating
// into one message instead of emitting a chunk sequence. Visible text is
// not run through the <thinking> tag splitter: inline tags stay in content.
//
// Grounded on internal/translator/gemini/openai/chat-completions/gemini_openai_response.go's
// ConvertGeminiResponseToOpenAINonStream, which walks the same parts array
// and folds text/reasoning/functionCall parts into a single message.
func TranslateNonStreamResponse(ctx context.Context, cache *signature.Cache, id, model string, created int64, rawJSON []byte) []byte {
	root := gjson.ParseBytes(rawJSON)

	out := []byte(`{"object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant"},"finish_reason":"stop"}]}`)
	out, _ = sjson.SetBytes(out, "id", id)
	out, _ = sjson.SetBytes(out, "created", created)
	out, _ = sjson.SetBytes(out, "model", model)

	var (
		content          string
		reasoningContent string
		thoughtSignature string
		toolCalls        [][]byte
	)

	parts := root.Get("response.candidates.0.content.parts")
	for _, part := range parts.Array() {
		switch {
		case part.Get("text").Exists() && part.Get("thought").Bool():
			reasoningContent += part.Get("text").String()
			if sig := partSignature(part); sig != "" {
				thoughtSignature = sig
			}
		case part.Get("text").Exists():
			content += part.Get("text").String()
		case part.Get("functionCall").Exists():
			fc := part.Get("functionCall")
			if sig := partSignature(fc); sig != "" && thoughtSignature == "" {
				thoughtSignature = sig
			}
			toolCallID := "call_" + uuid.NewString()
			if cache != nil && thoughtSignature != "" {
				_ = cache.Store(ctx, toolCallID, thoughtSignature, reasoningContent)
			}
			argsJSON := "{}"
			if args := fc.Get("args"); args.Exists() {
				argsJSON = args.Raw
			}
			toolCalls = append(toolCalls, buildNonStreamToolCall(toolCallID, fc.Get("name").String(), argsJSON))
		}
	}

	if content != "" {
		out, _ = sjson.SetBytes(out, "choices.0.message.content", content)
	}
	if reasoningContent != "" {
		out, _ = sjson.SetBytes(out, "choices.0.message.thinking", reasoningContent)
	}
	if thoughtSignature != "" {
		out, _ = sjson.SetBytes(out, "choices.0.message.signature", thoughtSignature)
	}
	if len(toolCalls) > 0 {
		out, _ = sjson.SetRawBytes(out, "choices.0.message.tool_calls", joinRawArray(toolCalls))
		out, _ = sjson.SetBytes(out, "choices.0.finish_reason", "tool_calls")
	}

	if usage := root.Get("response.usageMetadata"); usage.Exists() {
		prompt := usage.Get("promptTokenCount").Int()
		completion := usage.Get("candidatesTokenCount").Int()
		out, _ = sjson.SetBytes(out, "usage.prompt_tokens", prompt)
		out, _ = sjson.SetBytes(out, "usage.completion_tokens", completion)
		out, _ = sjson.SetBytes(out, "usage.total_tokens", prompt+completion)
	}

	return out
}

// AttachFallbackNotification adds note as an extra field on a non-streaming
// result, per spec §4.5's "additional field in the non-streaming result"
// branch. Callers apply this to TranslateNonStreamResponse's output only
// when the Fallback Coordinator reports UsedFallback.
func AttachFallbackNotification(out []byte, note string) []byte {
	if note == "" {
		return out
	}
	out, _ = sjson.SetBytes(out, "gca_fallback_notification", note)
	return out
}

func buildNonStreamToolCall(id, name, argsJSON string) []byte {
	out := []byte(`{"type":"function"}`)
	out, _ = sjson.SetBytes(out, "id", id)
	out, _ = sjson.SetBytes(out, "function.name", name)
	out, _ = sjson.SetBytes(out, "function.arguments", argsJSON)
	return out
}

func joinRawArray(items [][]byte) []byte {
	out := []byte("[]")
	for i, item := range items {
		out, _ = sjson.SetRawBytes(out, strconv.Itoa(i), item)
	}
	return out
}
