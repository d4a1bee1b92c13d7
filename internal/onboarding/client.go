// Package onboarding performs the Code Assist project-resolution handshake:
// loadCodeAssist to read an existing cloudaicompanionProject, falling back
// to a tier-selection onboardUser poll loop when none is attached yet.
//
// Grounded on internal/auth/antigravity/auth.go's FetchProjectID/OnboardUser
// pair for the loadCodeAssist->tier-fallback->onboardUser shape, the poll
// parameters replaced by spec §4.7's 30-attempts/1s schedule, and the
// request payloads replaced by spec §4.7's literal
// {cloudaicompanionProject, metadata.duetProject} /
// {tierId, cloudaicompanionProject} contracts rather than the teacher's
// IDE-metadata shape. Concurrent callers are collapsed with singleflight so
// a cold start under load issues one handshake instead of one per request.
package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/calebjordan/gca-chat-core/internal/apierrors"
	"github.com/calebjordan/gca-chat-core/internal/constant"
)

const (
	// MaxOnboardAttempts and PollInterval are spec §4.7's exact onboardUser
	// poll-loop parameters, used in place of the teacher's 5-attempts/2s
	// schedule.
	MaxOnboardAttempts = 30
	PollInterval       = time.Second
)

// Client resolves the Code Assist project id for a token, collapsing
// concurrent resolutions for the same token via singleflight.
type Client struct {
	httpClient *http.Client
	baseURL    string
	group      singleflight.Group
}

// New constructs a Client. httpClient may be nil to use http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: constant.GeminiEndpoint}
}

// ResolveProject returns the cloudaicompanionProject id associated with
// accessToken, performing the onboarding handshake if one is required.
func (c *Client) ResolveProject(ctx context.Context, accessToken string) (string, error) {
	v, err, _ := c.group.Do(accessToken, func() (interface{}, error) {
		return c.resolveProject(ctx, accessToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) resolveProject(ctx context.Context, accessToken string) (string, error) {
	loadBody, err := json.Marshal(map[string]any{
		"cloudaicompanionProject": constant.DefaultProjectSentinel,
		"metadata":                map[string]any{"duetProject": constant.DefaultProjectSentinel},
	})
	if err != nil {
		return "", fmt.Errorf("onboarding: marshal loadCodeAssist request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:%s", c.baseURL, constant.GeminiAPIVersion, constant.MethodLoadCodeAssist)
	data, err := c.post(ctx, endpoint, accessToken, loadBody)
	if err != nil {
		return "", err
	}

	var loadResp map[string]any
	if err = json.Unmarshal(data, &loadResp); err != nil {
		return "", fmt.Errorf("onboarding: decode loadCodeAssist response: %w", err)
	}

	if projectID := extractProjectID(loadResp["cloudaicompanionProject"]); projectID != "" {
		return projectID, nil
	}

	tierID := selectDefaultTier(loadResp["allowedTiers"])
	return c.onboardUser(ctx, accessToken, tierID)
}

func extractProjectID(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		if id, ok := val["id"].(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func selectDefaultTier(v any) string {
	tiers, ok := v.([]any)
	if !ok {
		return constant.DefaultTier
	}
	for _, raw := range tiers {
		tier, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if isDefault, _ := tier["isDefault"].(bool); isDefault {
			if id, ok := tier["id"].(string); ok && strings.TrimSpace(id) != "" {
				return strings.TrimSpace(id)
			}
		}
	}
	return constant.DefaultTier
}

// onboardUser polls onboardUser until the operation reports done, any
// request fails (every non-2xx status and transport error ends the loop),
// or the attempt budget is exhausted.
func (c *Client) onboardUser(ctx context.Context, accessToken, tierID string) (string, error) {
	log.Infof("onboarding: onboarding user with tier %s", tierID)

	body, err := json.Marshal(map[string]any{
		"tierId":                  tierID,
		"cloudaicompanionProject": constant.DefaultProjectSentinel,
	})
	if err != nil {
		return "", fmt.Errorf("onboarding: marshal onboardUser request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s:%s", c.baseURL, constant.GeminiAPIVersion, constant.MethodOnboardUser)

	for attempt := 1; attempt <= MaxOnboardAttempts; attempt++ {
		log.Debugf("onboarding: poll attempt %d/%d", attempt, MaxOnboardAttempts)

		data, postErr := c.post(ctx, endpoint, accessToken, body)
		if postErr != nil {
			return "", postErr
		}

		var resp struct {
			Done     bool `json:"done"`
			Response struct {
				CloudAICompanionProject any `json:"cloudaicompanionProject"`
			} `json:"response"`
		}
		if err = json.Unmarshal(data, &resp); err != nil {
			return "", fmt.Errorf("onboarding: decode onboardUser response: %w", err)
		}

		if resp.Done {
			projectID := extractProjectID(resp.Response.CloudAICompanionProject)
			if projectID == "" {
				projectID = constant.DefaultProjectSentinel
			}
			log.Infof("onboarding: resolved project id %s", projectID)
			return projectID, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(PollInterval):
		}
	}

	return "", &apierrors.OnboardingTimeoutError{Attempts: MaxOnboardAttempts, Interval: PollInterval}
}

func (c *Client) post(ctx context.Context, url, accessToken string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("onboarding: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apierrors.TransportError{Op: "onboarding", Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("onboarding: close response body failed")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("onboarding: read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &apierrors.UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
