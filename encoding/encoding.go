// Package encoding converts x402 v1 messages to and from the base64 JSON
// carried by the X-PAYMENT and X-PAYMENT-RESPONSE headers.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/nacorid/x402-stellar"
)

// EncodePayment renders a PaymentPayload as an X-PAYMENT header value.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	return encode("payment", payment)
}

// DecodePayment parses an X-PAYMENT header value.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	return decode[x402.PaymentPayload]("payment", encoded)
}

// EncodeSettlement renders a SettleResponse as an X-PAYMENT-RESPONSE header
// value.
func EncodeSettlement(settlement x402.SettleResponse) (string, error) {
	return encode("settlement", settlement)
}

// DecodeSettlement parses an X-PAYMENT-RESPONSE header value.
func DecodeSettlement(encoded string) (x402.SettleResponse, error) {
	return decode[x402.SettleResponse]("settlement", encoded)
}

func encode(kind string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decode[T any](kind, encoded string) (T, error) {
	var v T
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return v, fmt.Errorf("failed to decode base64: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return v, nil
}
