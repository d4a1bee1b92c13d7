// Package thinking converts the caller's reasoning_effort level into the
// Gemini thinkingConfig budget the request translator attaches to a turn.
package thinking

import "strings"

// ThinkingConfig mirrors the upstream generationConfig.thinkingConfig shape.
type ThinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

// budgetTable is the request translator's effort → budget map (spec §4.1
// step 8). Only the three recognized levels resolve; anything else is
// unrecognized.
var budgetTable = map[string]int{
	"low":    1024,
	"medium": 8192,
	"high":   24576,
}

// DefaultBudget is attached to thinking models when no effort was
// recognized, per spec §4.1 step 8 and the boundary case in §8.
var DefaultBudget = ThinkingConfig{ThinkingBudget: 8192, IncludeThoughts: true}

// BudgetFor resolves a reasoning-effort string to a thinkingConfig. The
// second return value is false when the level is unrecognized.
func BudgetFor(effort string) (ThinkingConfig, bool) {
	budget, ok := budgetTable[strings.ToLower(strings.TrimSpace(effort))]
	if !ok {
		return ThinkingConfig{}, false
	}
	return ThinkingConfig{ThinkingBudget: budget, IncludeThoughts: true}, true
}

// ResolveThinkingConfig implements spec §4.1 step 8's thinkingConfig rule:
//   - thinking models always get a thinkingConfig: the resolved budget for a
//     recognized effort, or DefaultBudget otherwise.
//   - non-thinking models only get a thinkingConfig when effort was provided
//     and recognized.
func ResolveThinkingConfig(effort string, isThinkingModel bool) (ThinkingConfig, bool) {
	cfg, recognized := BudgetFor(effort)
	if isThinkingModel {
		if recognized {
			return cfg, true
		}
		return DefaultBudget, true
	}
	if recognized {
		return cfg, true
	}
	return ThinkingConfig{}, false
}
