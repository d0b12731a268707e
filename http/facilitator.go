// Package http provides the x402 v1 facilitator HTTP client and the
// framework-neutral configuration shared by the resource-server middleware.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/facilitator"
	"github.com/nacorid/x402-stellar/retry"
	"github.com/nacorid/x402-stellar/stellar"
)

// AuthorizationProvider is a function that returns an Authorization header value.
// This is useful for dynamic tokens (e.g., JWT refresh) where the value may change.
//
// Thread-safety: The provider function is called on each HTTP request, including
// during retry attempts. If your provider accesses shared state or performs I/O
// (e.g., token refresh), ensure it is safe for concurrent use. The FacilitatorClient
// does not serialize calls to the provider.
type AuthorizationProvider func(*http.Request) string

// OnBeforeFunc is a callback invoked before a verify or settle operation.
// Return an error to abort the operation.
type OnBeforeFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirements) error

// OnAfterVerifyFunc is a callback invoked after a Verify operation completes.
// Called with the result (success or failure) for logging, metrics, etc.
type OnAfterVerifyFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirements, *x402.VerifyResponse, error)

// OnAfterSettleFunc is a callback invoked after a Settle operation completes.
// Called with the result (success or failure) for logging, metrics, etc.
type OnAfterSettleFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirements, *x402.SettleResponse, error)

// FacilitatorClient is a client for remote x402 v1 facilitators. The
// binary also plugs it into facilitator.Router to forward EVM and SVM
// payments to an upstream facilitator.
type FacilitatorClient struct {
	// BaseURL is the facilitator service URL (e.g., "https://facilitator.x402.org").
	BaseURL string

	// Client is the HTTP client to use for requests. If nil, http.DefaultClient is used.
	Client *http.Client

	// Timeouts contains timeout configuration for payment operations.
	Timeouts x402.TimeoutConfig

	// MaxRetries is the maximum number of retry attempts for failed requests (default: 0).
	// Set to 0 to disable retries.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts (default: 100ms).
	// Exponential backoff is applied with a multiplier of 2.0.
	RetryDelay time.Duration

	// Authorization is a static Authorization header value (e.g., "Bearer token" or "Basic base64").
	// If AuthorizationProvider is also set, the provider takes precedence.
	Authorization string

	// AuthorizationProvider is a function that returns an Authorization header value.
	// This is useful for dynamic tokens that may need to be refreshed.
	// If set, this takes precedence over the static Authorization field.
	AuthorizationProvider AuthorizationProvider

	// OnBeforeVerify is called before the Verify operation starts.
	// If it returns an error, the operation is aborted immediately.
	OnBeforeVerify OnBeforeFunc

	// OnAfterVerify is called after the Verify operation completes (success or failure).
	OnAfterVerify OnAfterVerifyFunc

	// OnBeforeSettle is called before the Settle operation starts.
	// If it returns an error, the operation is aborted immediately.
	OnBeforeSettle OnBeforeFunc

	// OnAfterSettle is called after the Settle operation completes (success or failure).
	OnAfterSettle OnAfterSettleFunc
}

// Verify that FacilitatorClient implements facilitator.Interface.
var _ facilitator.Interface = (*FacilitatorClient)(nil)

// httpClient returns the HTTP client to use, defaulting to http.DefaultClient.
func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// setAuthorizationHeader sets the Authorization header on the request if configured.
// If AuthorizationProvider is set, it is called to get the current token value;
// otherwise, the static Authorization string is used. This is called per-request.
func (c *FacilitatorClient) setAuthorizationHeader(req *http.Request) {
	var authValue string
	if c.AuthorizationProvider != nil {
		authValue = c.AuthorizationProvider(req)
	} else if c.Authorization != "" {
		authValue = c.Authorization
	}
	if authValue != "" {
		req.Header.Set("Authorization", authValue)
	}
}

// retryConfig returns the retry configuration based on client settings.
func (c *FacilitatorClient) retryConfig() retry.Config {
	retryDelay := c.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	maxRetries := c.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return retry.Config{
		MaxAttempts:  maxRetries + 1, // +1 because MaxRetries is retry count, not attempt count
		InitialDelay: retryDelay,
		MaxDelay:     retryDelay * 4,
		Multiplier:   2.0,
	}
}

// Verify asks the facilitator to verify a payment without settling it.
func (c *FacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	if c.OnBeforeVerify != nil {
		if err := c.OnBeforeVerify(ctx, payload, requirements); err != nil {
			return nil, err
		}
	}

	resp, err := post[x402.VerifyResponse](ctx, c, "/verify", c.Timeouts.VerifyTimeout, x402.ErrVerificationFailed, facilitator.VerifyRequest{
		X402Version:         x402.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if resp != nil && resp.Payer == "" {
		resp.Payer = extractPayer(payload)
	}

	if c.OnAfterVerify != nil {
		c.OnAfterVerify(ctx, payload, requirements, resp, err)
	}
	return resp, err
}

// Settle asks the facilitator to settle a payment. The facilitator polls
// the ledger for finality, so SettleTimeout must cover its poll budget.
func (c *FacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	if c.OnBeforeSettle != nil {
		if err := c.OnBeforeSettle(ctx, payload, requirements); err != nil {
			return nil, err
		}
	}

	resp, err := post[x402.SettleResponse](ctx, c, "/settle", c.Timeouts.SettleTimeout, x402.ErrSettlementFailed, facilitator.SettleRequest{
		X402Version:         x402.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if resp != nil && resp.Payer == "" {
		resp.Payer = extractPayer(payload)
	}

	if c.OnAfterSettle != nil {
		c.OnAfterSettle(ctx, payload, requirements, resp, err)
	}
	return resp, err
}

// post sends body as JSON to path and decodes a 200 answer into T.
// Transport failures are retried; any other failure is returned at once.
func post[T any](ctx context.Context, c *FacilitatorClient, path string, timeout time.Duration, failure error, body interface{}) (*T, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailableError, func() (*T, error) {
		reqCtx := ctx
		if _, hasDeadline := ctx.Deadline(); !hasDeadline && timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		c.setAuthorizationHeader(httpReq)

		httpResp, err := c.httpClient().Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %s returned status %d", x402.ErrFacilitatorUnavailable, path, httpResp.StatusCode)
		}
		if httpResp.StatusCode != http.StatusOK {
			return nil, parseErrorResponse(httpResp, failure)
		}

		var out T
		if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		return &out, nil
	})
}

// Supported queries the facilitator for supported payment types.
func (c *FacilitatorClient) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	reqCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeouts.VerifyTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.VerifyTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.BaseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthorizationHeader(httpReq)

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: supported returned status %d", x402.ErrFacilitatorUnavailable, httpResp.StatusCode)
	}

	var supportedResp x402.SupportedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&supportedResp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}

	return &supportedResp, nil
}

// EnrichRequirements copies the facilitator's advertised extra data, such as
// the Stellar feePayer, into requirements that do not set those keys.
func (c *FacilitatorClient) EnrichRequirements(ctx context.Context, requirements []x402.PaymentRequirements) ([]x402.PaymentRequirements, error) {
	supported, err := c.Supported(ctx)
	if err != nil {
		return requirements, fmt.Errorf("failed to fetch supported payment types: %w", err)
	}

	supportedMap := make(map[string]x402.SupportedKind)
	for _, kind := range supported.Kinds {
		key := kind.Network + "-" + kind.Scheme
		supportedMap[key] = kind
	}

	enriched := make([]x402.PaymentRequirements, len(requirements))
	for i, req := range requirements {
		enriched[i] = req
		kind, ok := supportedMap[req.Network+"-"+req.Scheme]
		if !ok || kind.Extra == nil {
			continue
		}
		extra := make(map[string]interface{}, len(req.Extra)+len(kind.Extra))
		for k, v := range kind.Extra {
			extra[k] = v
		}
		// Values set by the resource server take precedence.
		for k, v := range req.Extra {
			extra[k] = v
		}
		enriched[i].Extra = extra
	}

	return enriched, nil
}

// parseErrorResponse extracts error details from a non-200 HTTP response.
func parseErrorResponse(resp *http.Response, baseErr error) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	// Try to parse as JSON with invalidReason or errorReason
	var errBody map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &errBody); err == nil {
		if reason, ok := errBody["invalidReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
		}
		if reason, ok := errBody["errorReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
		}
	}

	// If we couldn't parse as JSON, include raw body (truncated)
	if len(bodyBytes) > 0 && len(bodyBytes) < 500 {
		return fmt.Errorf("%w: status %d, body: %s", baseErr, resp.StatusCode, string(bodyBytes))
	}

	return fmt.Errorf("%w: status %d", baseErr, resp.StatusCode)
}

// extractPayer recovers the payer from a Stellar payload when the
// facilitator did not report one.
func extractPayer(payload x402.PaymentPayload) string {
	if family, err := x402.ValidateNetwork(payload.Network); err != nil || family != x402.NetworkTypeStellar {
		return ""
	}
	return stellar.PayerOf(payload)
}

// isFacilitatorUnavailableError checks if an error is a facilitator unavailable error.
// It uses errors.Is to properly detect wrapped errors.
func isFacilitatorUnavailableError(err error) bool {
	return errors.Is(err, x402.ErrFacilitatorUnavailable)
}
