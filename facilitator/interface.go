// Package facilitator defines the interface for x402 payment facilitator
// operations.
//
// A facilitator is responsible for verifying payment authorizations and settling
// payments on a ledger. The HTTP client in package http, the Stellar scheme
// in package stellar and the Router in this package all satisfy Interface.
package facilitator

import (
	"context"

	x402 "github.com/nacorid/x402-stellar"
)

// Interface defines the standard facilitator contract for payment verification and settlement.
type Interface interface {
	// Verify verifies a payment authorization without executing the transaction.
	// It checks that the payment payload is valid, properly signed, and
	// would succeed against current ledger state.
	Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error)

	// Settle executes a verified payment on the ledger. Implementations
	// re-verify before committing anything.
	Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error)

	// Supported queries the facilitator for supported payment kinds.
	Supported(ctx context.Context) (*x402.SupportedResponse, error)
}

// VerifyRequest is the request payload sent to POST /verify.
type VerifyRequest struct {
	// X402Version is the protocol version (1).
	X402Version int `json:"x402Version"`

	// PaymentPayload contains the signed payment data from the client.
	PaymentPayload x402.PaymentPayload `json:"paymentPayload"`

	// PaymentRequirements contains the payment option that was accepted.
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is the request payload sent to POST /settle.
type SettleRequest struct {
	// X402Version is the protocol version (1).
	X402Version int `json:"x402Version"`

	// PaymentPayload contains the signed payment data from the client.
	PaymentPayload x402.PaymentPayload `json:"paymentPayload"`

	// PaymentRequirements contains the payment option that was accepted.
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}
