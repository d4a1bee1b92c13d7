// Package registry holds the static model tables and constants the proxy
// core needs: canonical upstream model identifiers, the thinking-enabled
// model set, and default generation parameters. Endpoint URLs live in
// internal/constant.
package registry

import "strings"

// ThinkingSupport describes a model's thinking-budget range, mirroring the
// capability descriptor the teacher attaches to its model definitions.
type ThinkingSupport struct {
	Min int
	Max int
}

// ModelInfo describes one upstream model.
type ModelInfo struct {
	// ID is the canonical upstream model identifier sent to Gemini.
	ID string
	// Aliases are caller-supplied names that resolve to this model.
	Aliases []string
	// Thinking is non-nil for models that accept a thinkingConfig.
	Thinking *ThinkingSupport
}

// DefaultTemperature is used when the caller does not supply one.
const DefaultTemperature = 1.0

// PrimaryThinkingModel is the model an unrecognized caller model name
// resolves to, per the request translator's model-resolution step.
const PrimaryThinkingModel = "gemini-2.5-pro"

var staticModels = []*ModelInfo{
	{
		ID:       "gemini-2.5-pro",
		Aliases:  []string{"gemini-2.5-pro", "gpt-4", "gpt-4o", "gpt-4.1"},
		Thinking: &ThinkingSupport{Min: 128, Max: 32768},
	},
	{
		ID:       "gemini-2.5-flash",
		Aliases:  []string{"gemini-2.5-flash", "gpt-4o-mini", "gpt-4.1-mini"},
		Thinking: &ThinkingSupport{Min: 0, Max: 24576},
	},
	{
		ID:      "gemini-2.0-flash",
		Aliases: []string{"gemini-2.0-flash"},
		// No Thinking: this model does not accept thinkingConfig.
	},
}

var (
	byAlias = buildAliasIndex(staticModels)
)

func buildAliasIndex(models []*ModelInfo) map[string]*ModelInfo {
	idx := make(map[string]*ModelInfo, len(models)*2)
	for _, m := range models {
		idx[m.ID] = m
		for _, a := range m.Aliases {
			idx[strings.ToLower(a)] = m
		}
	}
	return idx
}

// Lookup resolves a caller-supplied model name to its ModelInfo, or nil if
// unknown.
func Lookup(name string) *ModelInfo {
	return byAlias[strings.ToLower(strings.TrimSpace(name))]
}

// ResolveModel implements the request translator's model-resolution step:
// pass the caller's model name through the table; unknown names default to
// the primary thinking model.
func ResolveModel(name string) string {
	if info := Lookup(name); info != nil {
		return info.ID
	}
	return PrimaryThinkingModel
}

// IsThinkingModel reports whether the resolved model requires a
// thinkingConfig to be always set.
func IsThinkingModel(resolvedModel string) bool {
	info := byAlias[strings.ToLower(resolvedModel)]
	return info != nil && info.Thinking != nil
}
