package fallback

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/calebjordan/gca-chat-core/internal/apierrors"
)

// CallFunc issues one non-streaming upstream call for a given model.
type CallFunc func(ctx context.Context, model string, body []byte) ([]byte, error)

// StreamFunc issues one streaming upstream call for a given model.
type StreamFunc func(ctx context.Context, model string, body []byte) (*http.Response, error)

// Result carries the outcome of a coordinated call, including whether a
// fallback occurred and the notification to surface to the caller.
type Result struct {
	ModelUsed    string
	UsedFallback bool
	Notification string
}

// Coordinator wraps the upstream client with rate-limit fallback, per spec
// §4.5. It is stateless aside from the Policy it consults; concurrent calls
// are independent.
type Coordinator struct {
	policy   *Policy
	disabled bool
}

// New constructs a Coordinator. When disabled is true (the
// --disable-auto-model-switch flag), Call and Stream never fall back;
// an eligible rate-limit error surfaces to the caller unchanged.
func New(policy *Policy, disabled bool) *Coordinator {
	return &Coordinator{policy: policy, disabled: disabled}
}

// Call performs call against model, falling back once to the policy's
// designated model on a rate-limit-classified UpstreamError.
func (c *Coordinator) Call(ctx context.Context, model string, body []byte, call CallFunc) ([]byte, Result, error) {
	resp, err := call(ctx, model, body)
	if err == nil {
		return resp, Result{ModelUsed: model}, nil
	}

	fallbackModel, ok := c.eligible(model, err)
	if !ok {
		return nil, Result{}, err
	}

	resp, err = call(ctx, fallbackModel, body)
	if err != nil {
		return nil, Result{}, err
	}
	return resp, Result{
		ModelUsed:    fallbackModel,
		UsedFallback: true,
		Notification: notificationFor(model, fallbackModel),
	}, nil
}

// Stream performs stream against model, falling back once to the policy's
// designated model on a rate-limit-classified UpstreamError. Per spec
// §4.5, fallback is only possible while the error surfaces before any
// response body has been read — upstream.Client.Stream fails fast on a
// non-2xx status before returning a body, so no partial chunks are ever
// discarded by a fallback here.
func (c *Coordinator) Stream(ctx context.Context, model string, body []byte, stream StreamFunc) (*http.Response, Result, error) {
	resp, err := stream(ctx, model, body)
	if err == nil {
		return resp, Result{ModelUsed: model}, nil
	}

	fallbackModel, ok := c.eligible(model, err)
	if !ok {
		return nil, Result{}, err
	}

	resp, err = stream(ctx, fallbackModel, body)
	if err != nil {
		return nil, Result{}, err
	}
	return resp, Result{
		ModelUsed:    fallbackModel,
		UsedFallback: true,
		Notification: notificationFor(model, fallbackModel),
	}, nil
}

func (c *Coordinator) eligible(model string, err error) (string, bool) {
	if c.disabled {
		return "", false
	}
	var upstreamErr *apierrors.UpstreamError
	if !errors.As(err, &upstreamErr) {
		return "", false
	}
	if !c.policy.IsRateLimitStatus(upstreamErr.Status) {
		return "", false
	}
	return c.policy.FallbackFor(model)
}

func notificationFor(originalModel, fallbackModel string) string {
	return fmt.Sprintf("Note: %s was rate-limited; this response was generated by %s instead.", originalModel, fallbackModel)
}
