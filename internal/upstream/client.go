// Package upstream talks to the Google Code Assist generateContent and
// streamGenerateContent endpoints over a caller-supplied oauth2.TokenSource.
//
// Grounded on internal/runtime/executor/gemini_executor.go's Execute and
// ExecuteStream: the URL pattern
// fmt.Sprintf("%s/%s/models/%s:%s", baseURL, apiVersion, model, action)
// and the ?alt=sse streaming suffix. Stream returns the open response; the
// SSE scanning loop lives in internal/sse. Bearer-token authentication is delegated entirely to the
// injected oauth2.TokenSource; this package never implements token refresh
// itself, only reacts to a 401 by asking the source for a token once more.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/calebjordan/gca-chat-core/internal/apierrors"
	"github.com/calebjordan/gca-chat-core/internal/constant"
)

// Client issues generateContent/streamGenerateContent requests against the
// Code Assist API.
type Client struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	baseURL     string
}

// New constructs a Client. httpClient may be nil to use http.DefaultClient.
func New(tokenSource oauth2.TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, tokenSource: tokenSource, baseURL: constant.GeminiEndpoint}
}

func (c *Client) endpoint(model, action string) string {
	return fmt.Sprintf("%s/%s/models/%s:%s", c.baseURL, constant.GeminiAPIVersion, model, action)
}

func (c *Client) newRequest(ctx context.Context, url string, body []byte, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// Call performs a non-streaming generateContent call and returns the raw
// response body.
func (c *Client) Call(ctx context.Context, model string, body []byte) ([]byte, error) {
	url := c.endpoint(model, constant.MethodGenerateContent)
	resp, err := c.doWithRetry(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apierrors.UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// Stream performs a streamGenerateContent call and returns the raw HTTP
// response for the caller to scan with internal/sse. The caller owns
// closing the response body.
func (c *Client) Stream(ctx context.Context, model string, body []byte) (*http.Response, error) {
	url := c.endpoint(model, constant.MethodStreamGenerateContent) + "?alt=sse"
	resp, err := c.doWithRetry(ctx, url, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		closeBody(resp)
		return nil, &apierrors.UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}

// doWithRetry issues the request, retrying exactly once on a 401 after
// asking the token source for a (possibly refreshed) token.
func (c *Client) doWithRetry(ctx context.Context, url string, body []byte) (*http.Response, error) {
	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("upstream: obtain token: %w", err)
	}

	resp, err := c.send(ctx, url, body, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	closeBody(resp)

	log.Warn("upstream: 401 received, requesting a fresh token and retrying once")
	token, err = c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("upstream: obtain refreshed token: %w", err)
	}
	return c.send(ctx, url, body, token.AccessToken)
}

func (c *Client) send(ctx context.Context, url string, body []byte, accessToken string) (*http.Response, error) {
	req, err := c.newRequest(ctx, url, body, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apierrors.TransportError{Op: "upstream", Err: err}
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	if err := resp.Body.Close(); err != nil {
		log.WithError(err).Warn("upstream: close response body failed")
	}
}
