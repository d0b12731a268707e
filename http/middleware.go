package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/http/internal/helpers"
)

// Config holds the configuration for the x402 v1 payment middleware.
type Config struct {
	// FacilitatorURL is the primary facilitator endpoint.
	FacilitatorURL string

	// FallbackFacilitatorURL is the optional backup facilitator.
	FallbackFacilitatorURL string

	// PaymentRequirements defines the accepted payment methods. Empty
	// Resource, Description and MimeType fields are filled per request.
	PaymentRequirements []x402.PaymentRequirements

	// VerifyOnly skips settlement if true (only verifies payments).
	VerifyOnly bool

	// Logger receives the middleware logs. Defaults to slog.Default().
	Logger *slog.Logger

	// FacilitatorAuthorization is a static Authorization header value for the primary facilitator.
	// Example: "Bearer your-api-key" or "Basic base64-encoded-credentials"
	FacilitatorAuthorization string

	// FacilitatorAuthorizationProvider returns an Authorization header value
	// for the primary facilitator. It takes precedence over FacilitatorAuthorization.
	FacilitatorAuthorizationProvider AuthorizationProvider

	// Facilitator hooks for custom logic before/after verify and settle operations.
	FacilitatorOnBeforeVerify OnBeforeFunc
	FacilitatorOnAfterVerify  OnAfterVerifyFunc
	FacilitatorOnBeforeSettle OnBeforeFunc
	FacilitatorOnAfterSettle  OnAfterSettleFunc

	// FallbackFacilitatorAuthorization is a static Authorization header value for the fallback facilitator.
	FallbackFacilitatorAuthorization string

	// FallbackFacilitatorAuthorizationProvider takes precedence over
	// FallbackFacilitatorAuthorization.
	FallbackFacilitatorAuthorizationProvider AuthorizationProvider

	// FallbackFacilitator hooks for custom logic before/after verify and settle operations.
	FallbackFacilitatorOnBeforeVerify OnBeforeFunc
	FallbackFacilitatorOnAfterVerify  OnAfterVerifyFunc
	FallbackFacilitatorOnBeforeSettle OnBeforeFunc
	FallbackFacilitatorOnAfterSettle  OnAfterSettleFunc
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key for storing verified payment information.
const PaymentContextKey = contextKey("x402_payment")

// writeRejection writes a gate rejection as JSON.
func writeRejection(w http.ResponseWriter, rej *Rejection) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rej.Status)
	_ = json.NewEncoder(w).Encode(rej.Body)
}

// NewX402Middleware creates a payment middleware for net/http handlers.
// Settlement happens when the handler commits a success status, so failed
// handlers are never charged.
func NewX402Middleware(config Config) func(http.Handler) http.Handler {
	gate := NewGate(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verified, rej := gate.Verify(r)
			if rej != nil {
				writeRejection(w, rej)
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), PaymentContextKey, verified.Response))

			interceptor := &settlementInterceptor{
				w: w,
				settleFunc: func() bool {
					settlement, rej := gate.Settle(r.Context(), verified)
					if rej != nil {
						writeRejection(w, rej)
						return false
					}
					if settlement != nil {
						if err := helpers.AddPaymentResponseHeader(w, settlement); err != nil {
							gate.logger.Warn("failed to add payment response header", "error", err)
						}
					}
					return true
				},
				onFailure: func(statusCode int) {
					gate.logger.Warn("handler returned non-success, skipping payment settlement", "status", statusCode)
				},
			}
			next.ServeHTTP(interceptor, r)
		})
	}
}

// settlementInterceptor wraps the ResponseWriter to intercept the moment of commitment.
type settlementInterceptor struct {
	w http.ResponseWriter
	// settleFunc is the callback that performs the actual settlement logic
	settleFunc func() bool
	// onFailure is an internal logging callback
	onFailure func(statusCode int)
	committed bool
	hijacked  bool
}

func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	// If the handler calls Write without WriteHeader, it implies 200 OK.
	// We must trigger our check now.
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}

	// If settlement failed, we have "hijacked" the connection to send an error.
	// We silently discard the handler's payload to prevent mixed responses.
	if i.hijacked {
		return len(b), nil
	}

	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	// Case 1: Handler is returning an error (e.g., 404, 500).
	// We do nothing. Let the error pass through. No settlement.
	if statusCode >= 400 {
		if i.onFailure != nil {
			i.onFailure(statusCode)
		}
		i.w.WriteHeader(statusCode)
		return
	}

	// Case 2: Handler wants to succeed. STOP!
	// We run the settlement logic now.
	if !i.settleFunc() {
		// Settlement failed. We mark as hijacked.
		// The settleFunc has already written the 402/503 error to the underlying writer.
		i.hijacked = true
		return
	}

	// Case 3: Settlement succeeded.
	// The settleFunc has already added the X-PAYMENT-RESPONSE headers.
	// We now allow the original status code to proceed.
	i.w.WriteHeader(statusCode)
}

// Flush implements http.Flusher to support streaming responses.
func (i *settlementInterceptor) Flush() {
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker to support connection hijacking.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := i.w.(http.Hijacker); ok {
		// Ensure settlement happens before hijacking (e.g., WebSocket upgrades)
		if !i.committed {
			// Treat hijack as a successful upgrade path; settle first.
			i.committed = true
			if !i.settleFunc() {
				i.hijacked = true
				return nil, nil, errors.New("payment settlement failed")
			}
		}
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Push implements http.Pusher to support HTTP/2 server push.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}

// GetPaymentFromContext extracts the verified payment information from the request context.
// Returns nil if no payment was verified or the context does not contain payment info.
func GetPaymentFromContext(ctx context.Context) *x402.VerifyResponse {
	value := ctx.Value(PaymentContextKey)
	if value == nil {
		return nil
	}
	resp, ok := value.(*x402.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}
