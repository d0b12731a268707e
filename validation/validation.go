// Package validation provides structural checks for x402 v1 payment data.
// It validates amounts, network names, per-family addresses and payment
// structures. It does not decide whether a payment is acceptable; that is
// the facilitator's job.
package validation

import (
	"fmt"
	"math/big"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/stellar/go/strkey"

	x402 "github.com/nacorid/x402-stellar"
)

// ValidateAmount validates that an amount string is a valid non-negative integer.
// Returns an error if the amount is empty, malformed, or negative.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}

	return nil
}

// ValidateNetwork validates a v1 network name such as "stellar-testnet".
func ValidateNetwork(network string) error {
	_, err := x402.ValidateNetwork(network)
	return err
}

// AddressRole says what an address is used for. Stellar recipients are
// accounts or contracts, assets are always contracts.
type AddressRole int

const (
	// RoleRecipient is a payTo address.
	RoleRecipient AddressRole = iota
	// RoleAsset is a token contract address.
	RoleAsset
)

// ValidateAddress validates an address for the family of network.
func ValidateAddress(address string, network string, role AddressRole) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return fmt.Errorf("cannot validate address: %w", err)
	}

	switch networkType {
	case x402.NetworkTypeStellar:
		return validateStellarAddress(address, role)

	case x402.NetworkTypeEVM:
		if !common.IsHexAddress(address) || len(address) != 42 {
			return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
		}
		return nil

	case x402.NetworkTypeSVM:
		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			return fmt.Errorf("invalid Solana address %s: %w", address, err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported network type for address validation: %s", networkType)
	}
}

func validateStellarAddress(address string, role AddressRole) error {
	if _, err := strkey.Decode(strkey.VersionByteContract, address); err == nil {
		return nil
	}
	if role == RoleAsset {
		return fmt.Errorf("invalid Stellar asset %s: expected a C... contract address", address)
	}
	if strkey.IsValidEd25519PublicKey(address) {
		return nil
	}
	if _, err := strkey.Decode(strkey.VersionByteMuxedAccount, address); err == nil {
		return nil
	}
	return fmt.Errorf("invalid Stellar address %s: expected a G..., M... or C... address", address)
}

// ValidateResource validates the resource URL of a requirement. An empty
// resource is allowed; middlewares fill it per request.
func ValidateResource(resource string) error {
	if resource == "" {
		return nil
	}
	u, err := url.Parse(resource)
	if err != nil {
		return fmt.Errorf("invalid resource URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid resource URL: %s is not absolute", resource)
	}
	return nil
}

// ValidatePaymentRequirements performs comprehensive validation of payment requirements.
// It validates the amount, network, addresses, scheme, and other required fields.
func ValidatePaymentRequirements(req x402.PaymentRequirements) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if err := ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if err := ValidateAddress(req.PayTo, req.Network, RoleRecipient); err != nil {
		return fmt.Errorf("invalid requirements: payTo %w", err)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirements: asset address cannot be empty")
	}

	if err := ValidateAddress(req.Asset, req.Network, RoleAsset); err != nil {
		return fmt.Errorf("invalid requirements: asset %w", err)
	}

	switch req.Scheme {
	case x402.SchemeExact:
	case "":
		return fmt.Errorf("invalid requirements: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirements: unsupported scheme %s", req.Scheme)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirements: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	if err := ValidateResource(req.Resource); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	// Stellar fee sponsorship names the facilitator account.
	networkType, _ := x402.ValidateNetwork(req.Network)
	if networkType == x402.NetworkTypeStellar && req.Extra != nil {
		if feePayer, ok := req.Extra["feePayer"].(string); ok && !strkey.IsValidEd25519PublicKey(feePayer) {
			return fmt.Errorf("invalid requirements: feePayer %s is not a G... account", feePayer)
		}
	}

	return nil
}

// ValidatePaymentPayload validates a payment payload structure.
// It checks the version, scheme, network and payload fields.
func ValidatePaymentPayload(payload x402.PaymentPayload) error {
	if payload.X402Version != x402.X402Version {
		return fmt.Errorf("unsupported x402 version: %d (expected %d)", payload.X402Version, x402.X402Version)
	}

	if payload.Scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}

	if _, err := x402.ValidateNetwork(payload.Network); err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}

	if payload.Payload == nil {
		return fmt.Errorf("payload cannot be nil")
	}

	networkType, _ := x402.ValidateNetwork(payload.Network)
	if networkType == x402.NetworkTypeStellar {
		if _, err := payload.StellarPayload(); err != nil {
			return fmt.Errorf("invalid stellar payload: %w", err)
		}
	}

	return nil
}

// ValidatePaymentRequired validates a complete 402 response structure.
func ValidatePaymentRequired(pr x402.PaymentRequired) error {
	if pr.X402Version != x402.X402Version {
		return fmt.Errorf("unsupported x402 version: %d (expected %d)", pr.X402Version, x402.X402Version)
	}

	if len(pr.Accepts) == 0 {
		return fmt.Errorf("invalid payment required: accepts cannot be empty")
	}

	for i, req := range pr.Accepts {
		if err := ValidatePaymentRequirements(req); err != nil {
			return fmt.Errorf("invalid payment required: accepts[%d] %w", i, err)
		}
	}

	return nil
}
