// Package helpers holds the X-PAYMENT header and 402 body plumbing shared by
// the resource-server middlewares.
package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/encoding"
)

// ErrNilSettlement is returned when settlement is nil in AddPaymentResponseHeader.
var ErrNilSettlement = errors.New("settlement is nil")

// ParsePaymentHeader extracts and decodes a PaymentPayload from the X-PAYMENT header.
// Returns ErrMalformedHeader if the header is missing or invalid.
func ParsePaymentHeader(r *http.Request) (*x402.PaymentPayload, error) {
	paymentHeader := r.Header.Get("X-PAYMENT")
	if paymentHeader == "" {
		return nil, x402.ErrMalformedHeader
	}

	payment, err := encoding.DecodePayment(paymentHeader)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "failed to decode payment header", err)
	}

	// Validate protocol version
	if payment.X402Version != x402.X402Version {
		return nil, x402.NewPaymentError(x402.ErrCodeUnsupportedVersion, "unsupported x402 version", x402.ErrUnsupportedVersion)
	}

	return &payment, nil
}

// PaymentRequired builds the v1 402 body.
func PaymentRequired(requirements []x402.PaymentRequirements, errMsg string) x402.PaymentRequired {
	return x402.PaymentRequired{
		X402Version: x402.X402Version,
		Error:       errMsg,
		Accepts:     requirements,
	}
}

// SendPaymentRequired writes a 402 Payment Required response with the given requirements.
// Returns an error if JSON encoding fails.
func SendPaymentRequired(w http.ResponseWriter, requirements []x402.PaymentRequirements, errMsg string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(PaymentRequired(requirements, errMsg)); err != nil {
		return fmt.Errorf("encoding PaymentRequired response: %w", err)
	}
	return nil
}

// ForRequest fills the resource URL and description of requirements that
// leave them empty, using the request being gated.
func ForRequest(r *http.Request, requirements []x402.PaymentRequirements) []x402.PaymentRequirements {
	out := make([]x402.PaymentRequirements, len(requirements))
	for i, req := range requirements {
		if req.Resource == "" {
			req.Resource = BuildResourceURL(r)
		}
		if req.Description == "" {
			req.Description = "Payment required for " + r.URL.Path
		}
		if req.MimeType == "" {
			req.MimeType = "application/json"
		}
		out[i] = req
	}
	return out
}

// AddPaymentResponseHeader adds the X-PAYMENT-RESPONSE header with settlement information.
// Returns an error if settlement is nil or encoding fails.
func AddPaymentResponseHeader(w http.ResponseWriter, settlement *x402.SettleResponse) error {
	if settlement == nil {
		return fmt.Errorf("AddPaymentResponseHeader: %w", ErrNilSettlement)
	}
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return fmt.Errorf("AddPaymentResponseHeader: encode settlement: %w", err)
	}
	w.Header().Set("X-PAYMENT-RESPONSE", encoded)
	return nil
}

// BuildResourceURL constructs the full URL for the protected resource from the request.
func BuildResourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.RequestURI
}
