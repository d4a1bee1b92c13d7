// Package translate implements the two protocol-translation halves of the
// proxy core: the outbound request translator (this file) and the inbound
// streaming response transformer (response.go).
//
// Grounded on internal/translator/gemini/openai/chat-completions's
// gjson/sjson raw-JSON construction idiom (never struct marshal/unmarshal),
// adapted to this spec's algorithm: signature-cache-aware assistant turn
// reconstruction, reasoning-field aliasing, and tool-message coalescing.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/calebjordan/gca-chat-core/internal/registry"
	"github.com/calebjordan/gca-chat-core/internal/schema"
	"github.com/calebjordan/gca-chat-core/internal/signature"
	"github.com/calebjordan/gca-chat-core/internal/thinking"
)

// thinkingTagPattern matches an inline <thinking>...</thinking> block,
// tolerating attributes on the opening tag. (?s) makes "." match newlines
// since reasoning text commonly spans multiple lines.
var thinkingTagPattern = regexp.MustCompile(`(?s)<thinking[^>]*>(.*?)</thinking>`)

var (
	signatureAliases = []string{"signature", "cot_id", "reasoning_opaque"}
	thoughtAliases    = []string{"thinking", "cot_summary", "reasoning_text"}
)

var dataImageURL = regexp.MustCompile(`^data:(image/[^;]+);base64,(.+)$`)

// TranslateRequest converts a caller (OpenAI-dialect) chat-completion
// request body into a complete Gemini generateContent request body,
// per spec §4.1. The conversion never fails; malformed or absent fields
// degrade gracefully to their documented defaults.
func TranslateRequest(ctx context.Context, cache *signature.Cache, project string, rawJSON []byte) []byte {
	root := gjson.ParseBytes(rawJSON)

	resolvedModel := registry.ResolveModel(root.Get("model").String())
	isThinkingModel := registry.IsThinkingModel(resolvedModel)
	effort := resolveReasoningEffort(root)

	out := []byte(`{"contents":[]}`)
	out, _ = sjson.SetBytes(out, "model", resolvedModel)
	if project != "" {
		out, _ = sjson.SetBytes(out, "project", project)
	}

	messages := root.Get("messages").Array()

	if sysInstr, ok := buildSystemInstruction(messages); ok {
		out, _ = sjson.SetRawBytes(out, "systemInstruction", sysInstr)
	}

	contents := buildContents(ctx, cache, messages)
	out, _ = sjson.SetRawBytes(out, "contents", contents)

	if toolsNode, ok := buildTools(root.Get("tools")); ok {
		out, _ = sjson.SetRawBytes(out, "tools", toolsNode)
	}

	if toolConfig, ok := buildToolConfig(root.Get("tool_choice")); ok {
		out, _ = sjson.SetRawBytes(out, "toolConfig", toolConfig)
	}

	temperature := registry.DefaultTemperature
	if t := root.Get("temperature"); t.Exists() && t.Type == gjson.Number {
		temperature = t.Num
	}
	out, _ = sjson.SetBytes(out, "generationConfig.temperature", temperature)

	if cfg, ok := thinking.ResolveThinkingConfig(effort, isThinkingModel); ok {
		out, _ = sjson.SetBytes(out, "generationConfig.thinkingConfig.thinkingBudget", cfg.ThinkingBudget)
		out, _ = sjson.SetBytes(out, "generationConfig.thinkingConfig.includeThoughts", cfg.IncludeThoughts)
	}

	return out
}

func resolveReasoningEffort(root gjson.Result) string {
	if e := root.Get("reasoning_effort"); e.Exists() && e.String() != "" {
		return e.String()
	}
	return root.Get("reasoning.effort").String()
}

// isSystemLike reports whether role belongs to the system-instruction group.
func isSystemLike(role string) bool {
	return role == "system" || role == "developer"
}

// buildSystemInstruction concatenates the text content of every system-like
// message, in order, into a single systemInstruction content node.
func buildSystemInstruction(messages []gjson.Result) ([]byte, bool) {
	var sb strings.Builder
	found := false
	for _, m := range messages {
		role := m.Get("role").String()
		if !isSystemLike(role) {
			continue
		}
		found = true
		sb.WriteString(textOfContent(m.Get("content")))
	}
	if !found {
		return nil, false
	}
	node := []byte(`{"parts":[{"text":""}]}`)
	node, _ = sjson.SetBytes(node, "parts.0.text", sb.String())
	return node, true
}

// textOfContent extracts the plain-text representation of a message's
// content field, whether it is a bare string or a list of content parts.
func textOfContent(content gjson.Result) string {
	switch {
	case content.Type == gjson.String:
		return content.String()
	case content.IsArray():
		var sb strings.Builder
		for _, part := range content.Array() {
			if part.Get("type").String() == "text" {
				sb.WriteString(part.Get("text").String())
			}
		}
		return sb.String()
	case content.Exists():
		return content.String()
	default:
		return ""
	}
}

// buildContents performs the single left-to-right pass over messages,
// coalescing consecutive tool messages into one upstream user turn and
// tracking the tool_call_id → function name map as assistant turns appear.
func buildContents(ctx context.Context, cache *signature.Cache, messages []gjson.Result) []byte {
	contents := []byte(`[]`)
	idToName := map[string]string{}

	i := 0
	for i < len(messages) {
		m := messages[i]
		role := m.Get("role").String()

		switch {
		case isSystemLike(role):
			i++

		case role == "tool":
			node, consumed := buildToolResponseTurn(messages[i:], idToName)
			contents, _ = sjson.SetRawBytes(contents, "-1", node)
			i += consumed

		case role == "user":
			node := buildUserTurn(m)
			contents, _ = sjson.SetRawBytes(contents, "-1", node)
			i++

		case role == "assistant":
			for _, node := range buildAssistantTurns(ctx, cache, m, idToName) {
				contents, _ = sjson.SetRawBytes(contents, "-1", node)
			}
			i++

		default:
			i++
		}
	}
	return contents
}

// buildToolResponseTurn consumes every consecutive "tool" message starting
// at messages[0] and returns the single coalesced upstream user turn plus
// the count of messages consumed.
func buildToolResponseTurn(messages []gjson.Result, idToName map[string]string) ([]byte, int) {
	node := []byte(`{"role":"user","parts":[]}`)
	n := 0
	for n < len(messages) && messages[n].Get("role").String() == "tool" {
		m := messages[n]
		toolCallID := m.Get("tool_call_id").String()
		name, ok := idToName[toolCallID]
		if !ok {
			name = "unknown"
		}
		path := fmt.Sprintf("parts.%d", n)
		node, _ = sjson.SetBytes(node, path+".functionResponse.name", name)
		node, _ = sjson.SetRawBytes(node, path+".functionResponse.response", toolResponsePayload(m.Get("content")))
		n++
	}
	return node, n
}

func toolResponsePayload(content gjson.Result) []byte {
	out := []byte(`{}`)
	switch {
	case content.Type == gjson.String:
		text := content.String()
		if json.Valid([]byte(text)) {
			out, _ = sjson.SetRawBytes(out, "result", []byte(text))
		} else {
			out, _ = sjson.SetBytes(out, "result", text)
		}
	case content.Exists():
		out, _ = sjson.SetRawBytes(out, "result", []byte(content.Raw))
	default:
		out, _ = sjson.SetBytes(out, "result", "")
	}
	return out
}

// buildUserTurn maps a caller "user" message into its upstream turn per
// spec §4.1 step 5 (user).
func buildUserTurn(m gjson.Result) []byte {
	node := []byte(`{"role":"user","parts":[]}`)
	content := m.Get("content")
	p := 0

	switch {
	case content.Type == gjson.String:
		node, _ = sjson.SetBytes(node, fmt.Sprintf("parts.%d.text", p), content.String())
		p++

	case content.IsArray():
		for _, item := range content.Array() {
			switch item.Get("type").String() {
			case "text":
				text := item.Get("text").String()
				if !strings.HasSuffix(text, "\n") {
					text += "\n"
				}
				node, _ = sjson.SetBytes(node, fmt.Sprintf("parts.%d.text", p), text)
				p++
			case "image_url":
				url := item.Get("image_url.url").String()
				if match := dataImageURL.FindStringSubmatch(url); match != nil {
					node, _ = sjson.SetBytes(node, fmt.Sprintf("parts.%d.inlineData.mimeType", p), match[1])
					node, _ = sjson.SetBytes(node, fmt.Sprintf("parts.%d.inlineData.data", p), match[2])
					p++
				}
			}
		}

	default:
		node, _ = sjson.SetBytes(node, fmt.Sprintf("parts.%d.text", p), content.String())
		p++
	}

	return node
}

// buildAssistantTurns maps a caller "assistant" message into its upstream
// turn per spec §4.1 step 5 (assistant), updating idToName for any tool
// calls it declares. Returns a slice for uniformity even though exactly one
// turn is produced (an assistant message never splits).
func buildAssistantTurns(ctx context.Context, cache *signature.Cache, m gjson.Result, idToName map[string]string) [][]byte {
	content := m.Get("content")
	contentText := textOfContent(content)

	thoughtSig, thoughtText, visibleText := resolveAssistantThought(ctx, cache, m, contentText)

	node := []byte(`{"role":"model","parts":[]}`)
	p := 0

	if thoughtText != "" {
		path := fmt.Sprintf("parts.%d", p)
		node, _ = sjson.SetBytes(node, path+".text", thoughtText)
		node, _ = sjson.SetBytes(node, path+".thought", true)
		if thoughtSig != "" {
			node, _ = sjson.SetBytes(node, path+".thought_signature", thoughtSig)
		}
		p++
	}
	if visibleText != "" {
		path := fmt.Sprintf("parts.%d", p)
		node, _ = sjson.SetBytes(node, path+".text", visibleText)
		p++
	}

	toolCalls := m.Get("tool_calls")
	if toolCalls.IsArray() {
		for _, tc := range toolCalls.Array() {
			if tc.Get("type").String() != "function" && tc.Get("type").Exists() {
				continue
			}
			id := tc.Get("id").String()
			name := tc.Get("function.name").String()
			args := tc.Get("function.arguments").String()
			if args == "" {
				args = "{}"
			}
			path := fmt.Sprintf("parts.%d", p)
			node, _ = sjson.SetBytes(node, path+".functionCall.name", name)
			node, _ = sjson.SetRawBytes(node, path+".functionCall.args", []byte(args))
			if thoughtSig != "" {
				node, _ = sjson.SetBytes(node, path+".thought_signature", thoughtSig)
			}
			p++
			if id != "" && name != "" {
				idToName[id] = name
			}
		}
	}

	return [][]byte{node}
}

// resolveAssistantThought implements spec §4.1 step 5.assistant.1: resolve
// (thoughtSignature, thoughtText) from the first non-empty of the message's
// own reasoning fields, a signature-cache hit for any of its tool_call_ids,
// or an inline <thinking> tag in its content. The returned visibleText
// always has any <thinking>...</thinking> span removed, regardless of which
// source won, so it is never accidentally surfaced (invariant 7).
func resolveAssistantThought(ctx context.Context, cache *signature.Cache, m gjson.Result, contentText string) (sig, thoughtText, visibleText string) {
	stripped := contentText
	var regexExtracted string
	if loc := thinkingTagPattern.FindStringSubmatchIndex(contentText); loc != nil {
		regexExtracted = contentText[loc[2]:loc[3]]
		stripped = contentText[:loc[0]] + contentText[loc[1]:]
	}

	if s := firstNonEmpty(m, signatureAliases); s != "" {
		sig = s
	}
	if t := firstNonEmpty(m, thoughtAliases); t != "" {
		thoughtText = t
	}
	if sig != "" || thoughtText != "" {
		return sig, thoughtText, stripped
	}

	if cache != nil {
		for _, tc := range m.Get("tool_calls").Array() {
			id := tc.Get("id").String()
			if id == "" {
				continue
			}
			if entry, ok := cache.Get(ctx, id); ok {
				return entry.Signature, entry.ThoughtText, stripped
			}
		}
	}

	if regexExtracted != "" {
		return "", regexExtracted, stripped
	}
	return "", "", stripped
}

func firstNonEmpty(m gjson.Result, keys []string) string {
	for _, k := range keys {
		if v := m.Get(k); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// buildTools converts the caller's tools array into a single
// tools:[{functionDeclarations:[...]}] entry, per spec §4.1 step 6.
func buildTools(tools gjson.Result) ([]byte, bool) {
	if !tools.IsArray() || len(tools.Array()) == 0 {
		return nil, false
	}
	decls := []byte(`[]`)
	any := false
	for _, t := range tools.Array() {
		if t.Get("type").String() != "function" {
			continue
		}
		fn := t.Get("function")
		if !fn.Exists() {
			continue
		}
		decl := []byte(`{}`)
		decl, _ = sjson.SetBytes(decl, "name", fn.Get("name").String())
		if desc := fn.Get("description"); desc.Exists() {
			decl, _ = sjson.SetBytes(decl, "description", desc.String())
		}
		params := fn.Get("parameters")
		paramsJSON := "{}"
		if params.Exists() {
			paramsJSON = params.Raw
		}
		cleaned := schema.CleanForGemini(paramsJSON)
		decl, _ = sjson.SetRawBytes(decl, "parameters", []byte(cleaned))

		decls, _ = sjson.SetRawBytes(decls, "-1", decl)
		any = true
	}
	if !any {
		return nil, false
	}
	out := []byte(`[{}]`)
	out, _ = sjson.SetRawBytes(out, "0.functionDeclarations", decls)
	return out, true
}

// buildToolConfig maps the caller's tool_choice directive into
// toolConfig.functionCallingConfig per spec §4.1 step 7.
func buildToolConfig(toolChoice gjson.Result) ([]byte, bool) {
	if !toolChoice.Exists() {
		return nil, false
	}
	switch {
	case toolChoice.Type == gjson.String:
		switch toolChoice.String() {
		case "none":
			return []byte(`{"functionCallingConfig":{"mode":"NONE"}}`), true
		case "auto":
			return []byte(`{"functionCallingConfig":{"mode":"AUTO"}}`), true
		default:
			return nil, false
		}
	case toolChoice.IsObject():
		name := toolChoice.Get("function.name").String()
		if name == "" {
			return nil, false
		}
		out := []byte(`{"functionCallingConfig":{"mode":"ANY","allowedFunctionNames":[]}}`)
		out, _ = sjson.SetBytes(out, "functionCallingConfig.allowedFunctionNames.0", name)
		return out, true
	default:
		return nil, false
	}
}
