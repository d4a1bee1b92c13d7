// Package fallback implements the rate-limit fallback coordinator: it
// detects a rate-limit-classified UpstreamError, consults a small static
// eligibility table, and re-drives the request once against a designated
// fallback model.
//
// The eligibility table is grounded on
// internal/api/modules/amp/model_mapping.go's DefaultModelMapper: a
// sync.RWMutex-guarded map rebuilt wholesale on UpdateMappings, rather than
// mutated in place, so a reader never observes a half-updated table.
package fallback

import (
	"sync"

	"github.com/calebjordan/gca-chat-core/internal/config"
)

// Policy is the live, hot-reloadable fallback eligibility table.
type Policy struct {
	mu                sync.RWMutex
	chains            map[string]string
	rateLimitStatuses map[int]bool
}

// NewPolicy builds a Policy from a loaded FallbackConfig.
func NewPolicy(cfg config.FallbackConfig) *Policy {
	p := &Policy{}
	p.Update(cfg)
	return p
}

// Update atomically replaces the policy's table, per spec §4.5's live-reload
// requirement. A reader never observes a partially-updated table.
func (p *Policy) Update(cfg config.FallbackConfig) {
	chains := make(map[string]string, len(cfg.Chains))
	for from, to := range cfg.Chains {
		chains[from] = to
	}
	statuses := make(map[int]bool, len(cfg.RateLimitStatuses)+1)
	statuses[429] = true
	for _, s := range cfg.RateLimitStatuses {
		statuses[s] = true
	}

	p.mu.Lock()
	p.chains = chains
	p.rateLimitStatuses = statuses
	p.mu.Unlock()
}

// FallbackFor returns the designated fallback model for requestedModel and
// whether one exists. A model absent from the table, or already at the
// bottom of its chain, is ineligible.
func (p *Policy) FallbackFor(requestedModel string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	target, ok := p.chains[requestedModel]
	return target, ok && target != ""
}

// IsRateLimitStatus reports whether status should be treated as a rate-limit
// condition for fallback purposes.
func (p *Policy) IsRateLimitStatus(status int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rateLimitStatuses[status]
}
