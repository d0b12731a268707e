package http

import (
	"context"
	"log/slog"
	"net/http"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/http/internal/helpers"
	"github.com/nacorid/x402-stellar/validation"
)

// Rejection is the response a resource server sends instead of serving
// the protected resource.
type Rejection struct {
	Status int
	Body   interface{}
}

// Verified is a payment the facilitator accepted for one request.
type Verified struct {
	Payment     *x402.PaymentPayload
	Requirement *x402.PaymentRequirements
	Response    *x402.VerifyResponse

	requirements []x402.PaymentRequirements
}

// Gate runs the resource-server side of a payment: parse X-PAYMENT, match
// it against the accepted requirements, verify and settle through the
// facilitator. The net/http and gin middlewares are adapters around it.
type Gate struct {
	primary      *FacilitatorClient
	fallback     *FacilitatorClient
	requirements []x402.PaymentRequirements
	verifyOnly   bool
	logger       *slog.Logger
}

// NewGate builds the facilitator clients described by config and enriches
// the requirements from the primary facilitator's /supported answer, which
// is how the Stellar feePayer reaches clients. Requirements that fail
// structural validation are logged and kept.
func NewGate(config Config) *Gate {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gate{
		primary: &FacilitatorClient{
			BaseURL:               config.FacilitatorURL,
			Client:                &http.Client{Timeout: x402.DefaultTimeouts.RequestTimeout},
			Timeouts:              x402.DefaultTimeouts,
			Authorization:         config.FacilitatorAuthorization,
			AuthorizationProvider: config.FacilitatorAuthorizationProvider,
			OnBeforeVerify:        config.FacilitatorOnBeforeVerify,
			OnAfterVerify:         config.FacilitatorOnAfterVerify,
			OnBeforeSettle:        config.FacilitatorOnBeforeSettle,
			OnAfterSettle:         config.FacilitatorOnAfterSettle,
		},
		verifyOnly: config.VerifyOnly,
		logger:     logger,
	}
	if config.FallbackFacilitatorURL != "" {
		g.fallback = &FacilitatorClient{
			BaseURL:               config.FallbackFacilitatorURL,
			Client:                &http.Client{Timeout: x402.DefaultTimeouts.RequestTimeout},
			Timeouts:              x402.DefaultTimeouts,
			Authorization:         config.FallbackFacilitatorAuthorization,
			AuthorizationProvider: config.FallbackFacilitatorAuthorizationProvider,
			OnBeforeVerify:        config.FallbackFacilitatorOnBeforeVerify,
			OnAfterVerify:         config.FallbackFacilitatorOnAfterVerify,
			OnBeforeSettle:        config.FallbackFacilitatorOnBeforeSettle,
			OnAfterSettle:         config.FallbackFacilitatorOnAfterSettle,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), x402.DefaultTimeouts.RequestTimeout)
	defer cancel()
	enriched, err := g.primary.EnrichRequirements(ctx, config.PaymentRequirements)
	if err != nil {
		logger.Warn("failed to enrich payment requirements from facilitator", "error", err)
		enriched = config.PaymentRequirements
	} else {
		logger.Debug("payment requirements enriched from facilitator", "count", len(enriched))
	}
	for i, req := range enriched {
		if err := validation.ValidatePaymentRequirements(req); err != nil {
			logger.Warn("payment requirement will not be payable", "index", i, "network", req.Network, "error", err)
		}
	}
	g.requirements = enriched
	return g
}

// Requirements returns the enriched requirements.
func (g *Gate) Requirements() []x402.PaymentRequirements {
	return g.requirements
}

func paymentRequired(requirements []x402.PaymentRequirements, msg string) *Rejection {
	return &Rejection{Status: http.StatusPaymentRequired, Body: helpers.PaymentRequired(requirements, msg)}
}

func failure(status int, msg string) *Rejection {
	return &Rejection{Status: status, Body: map[string]interface{}{
		"x402Version": x402.X402Version,
		"error":       msg,
	}}
}

// Verify checks the payment attached to r. Exactly one of the results is
// non-nil.
func (g *Gate) Verify(r *http.Request) (*Verified, *Rejection) {
	requirements := helpers.ForRequest(r, g.requirements)

	if r.Header.Get("X-PAYMENT") == "" {
		g.logger.Info("no payment header provided", "path", r.URL.Path)
		return nil, paymentRequired(requirements, "X-PAYMENT header is required")
	}

	payment, err := helpers.ParsePaymentHeader(r)
	if err != nil {
		g.logger.Warn("invalid payment header", "error", err)
		return nil, failure(http.StatusBadRequest, "Invalid payment header")
	}

	requirement, err := x402.FindMatchingRequirement(payment, requirements)
	if err != nil {
		g.logger.Warn("no matching requirement", "error", err)
		return nil, paymentRequired(requirements, "No matching payment requirement")
	}

	g.logger.Info("verifying payment", "scheme", payment.Scheme, "network", payment.Network)
	resp, err := g.primary.Verify(r.Context(), *payment, *requirement)
	if err != nil && g.fallback != nil {
		g.logger.Warn("primary facilitator failed, trying fallback", "error", err)
		resp, err = g.fallback.Verify(r.Context(), *payment, *requirement)
	}
	if err != nil {
		g.logger.Error("facilitator verification failed", "error", err)
		return nil, failure(http.StatusServiceUnavailable, "Payment verification failed")
	}
	if !resp.IsValid {
		g.logger.Warn("payment verification failed", "reason", resp.InvalidReason, "payer", resp.Payer)
		return nil, paymentRequired(requirements, resp.InvalidReason.String())
	}

	g.logger.Info("payment verified", "payer", resp.Payer)
	return &Verified{Payment: payment, Requirement: requirement, Response: resp, requirements: requirements}, nil
}

// Settle settles a verified payment. In verify-only mode it returns
// (nil, nil).
func (g *Gate) Settle(ctx context.Context, v *Verified) (*x402.SettleResponse, *Rejection) {
	if g.verifyOnly {
		return nil, nil
	}

	g.logger.Info("settling payment", "payer", v.Response.Payer)
	resp, err := g.primary.Settle(ctx, *v.Payment, *v.Requirement)
	if err != nil && g.fallback != nil {
		g.logger.Warn("primary facilitator settlement failed, trying fallback", "error", err)
		resp, err = g.fallback.Settle(ctx, *v.Payment, *v.Requirement)
	}
	if err != nil {
		g.logger.Error("settlement failed", "error", err)
		return nil, failure(http.StatusServiceUnavailable, "Payment settlement failed")
	}
	if !resp.Success {
		g.logger.Warn("settlement unsuccessful", "reason", resp.ErrorReason, "transaction", resp.Transaction)
		return nil, paymentRequired(v.requirements, resp.ErrorReason.String())
	}

	g.logger.Info("payment settled", "transaction", resp.Transaction, "network", resp.Network)
	return resp, nil
}
