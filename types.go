// Package x402 implements the x402 protocol version 1 types used by a
// Stellar facilitator.
//
// A resource server answers unpaid requests with 402 and a list of
// PaymentRequirements. The client attaches a PaymentPayload carrying a
// signed, pre-simulated Stellar transaction. A facilitator verifies that the
// transaction pays exactly what was asked and settles it on the ledger.
//
// Import path: github.com/nacorid/x402-stellar
package x402

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Protocol version constant
const X402Version = 1

// SchemeExact is the only payment scheme supported by this module.
const SchemeExact = "exact"

// PaymentRequirements defines a single acceptable payment option.
// This is an element in the "accepts" array of PaymentRequired.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the network name (e.g., "stellar-testnet").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in atomic units as a decimal string.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource"`

	// Description is an optional human-readable description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// OutputSchema optionally describes the response of the resource.
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds bounds how long settlement may take.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset is the token contract address (C... for Stellar asset contracts).
	Asset string `json:"asset"`

	// Extra contains scheme-specific additional data.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequired is the 402 response body sent by resource servers.
type PaymentRequired struct {
	// X402Version is the protocol version (1).
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error,omitempty"`

	// Accepts is an array of payment options the server will accept.
	Accepts []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is sent by clients to pay for resources.
type PaymentPayload struct {
	// X402Version is the protocol version (1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme the client used.
	Scheme string `json:"scheme"`

	// Network is the network the payment is made on.
	Network string `json:"network"`

	// Payload contains the network-specific signed payment data.
	// For Stellar: StellarPayload with the signed transaction envelope.
	Payload interface{} `json:"payload"`
}

// StellarPayload carries a base64 XDR transaction envelope whose single
// operation invokes the asset contract's transfer function.
type StellarPayload struct {
	// Transaction is the base64-encoded XDR TransactionEnvelope.
	Transaction string `json:"transaction"`
}

// StellarPayload decodes the payload field into a StellarPayload.
// The field is a StellarPayload when built in process and a generic map when
// it arrived as JSON.
func (p PaymentPayload) StellarPayload() (StellarPayload, error) {
	switch v := p.Payload.(type) {
	case StellarPayload:
		return v, nil
	case *StellarPayload:
		if v == nil {
			return StellarPayload{}, fmt.Errorf("%w: nil stellar payload", ErrMalformedPayload)
		}
		return *v, nil
	case nil:
		return StellarPayload{}, fmt.Errorf("%w: missing payload", ErrMalformedPayload)
	}

	data, err := json.Marshal(p.Payload)
	if err != nil {
		return StellarPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var sp StellarPayload
	if err := json.Unmarshal(data, &sp); err != nil {
		return StellarPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if sp.Transaction == "" {
		return StellarPayload{}, fmt.Errorf("%w: missing transaction", ErrMalformedPayload)
	}
	return sp, nil
}

// VerifyResponse is returned by the facilitator /verify endpoint.
type VerifyResponse struct {
	// IsValid indicates whether the payment is valid.
	IsValid bool `json:"isValid"`

	// InvalidReason provides a short error code if the payment is invalid.
	InvalidReason ErrorReason `json:"invalidReason,omitempty"`

	// Payer is the address that made the payment. It is reported on
	// rejections too whenever it could be decoded.
	Payer string `json:"payer,omitempty"`
}

// SettleResponse is returned by the facilitator /settle endpoint.
type SettleResponse struct {
	// Success indicates whether the payment was successfully settled.
	Success bool `json:"success"`

	// ErrorReason provides a short error code if the payment failed.
	ErrorReason ErrorReason `json:"errorReason,omitempty"`

	// Transaction is the ledger transaction hash (hex). Empty when nothing
	// was submitted.
	Transaction string `json:"transaction"`

	// Network is the network where the payment was settled.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// SupportedKind describes a payment type supported by a facilitator.
type SupportedKind struct {
	// X402Version is the protocol version supported.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the network name.
	Network string `json:"network"`

	// Extra contains scheme-specific additional data (e.g., feePayer).
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is returned by the facilitator /supported endpoint.
type SupportedResponse struct {
	// Kinds lists the payment types supported by the facilitator.
	Kinds []SupportedKind `json:"kinds"`
}

// AmountToBigInt converts a decimal amount string to *big.Int in atomic units.
// For example, "1.5" with 7 decimals becomes 15000000.
// Returns ErrInvalidAmount if the amount is negative or decimals is negative.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrInvalidAmount
	}

	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}

	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, scale)

	if value.Denom().Cmp(big.NewInt(1)) != 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal string.
// For example, 15000000 with 7 decimals becomes "1.5000000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	rat := new(big.Rat).SetInt(value)
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	rat.Quo(rat, scale)

	return rat.FloatString(decimals)
}

// ParseAtomicAmount parses a non-negative base-10 integer amount.
func ParseAtomicAmount(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return v, nil
}

// FindMatchingRequirement returns the requirement the payment was made
// against: the first one with the payload's scheme and network.
func FindMatchingRequirement(payment *PaymentPayload, requirements []PaymentRequirements) (*PaymentRequirements, error) {
	if payment == nil {
		return nil, fmt.Errorf("%w: nil payment", ErrMalformedPayload)
	}
	for i := range requirements {
		if requirements[i].Scheme == payment.Scheme && requirements[i].Network == payment.Network {
			return &requirements[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no requirement for scheme %q on network %q", ErrUnsupportedScheme, payment.Scheme, payment.Network)
}
