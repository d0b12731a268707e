// Package stellar provides an ed25519 keypair signer for Stellar networks.
//
// The facilitator uses it to sign rebuilt settlement transactions; clients
// use it to sign the Soroban authorization entry of a transfer.
package stellar

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/xdr"

	x402 "github.com/nacorid/x402-stellar"
)

// Signer signs Stellar transactions and Soroban authorization entries with
// a single keypair. It only signs for the network it was created for.
type Signer struct {
	kp         *keypair.Full
	network    string
	passphrase string
	maxFee     uint32
}

// Option configures a Signer.
type Option func(*Signer) error

// NewSigner creates a signer from an S... secret seed.
func NewSigner(network string, secretSeed string, opts ...Option) (*Signer, error) {
	kp, err := keypair.ParseFull(secretSeed)
	if err != nil {
		return nil, x402.ErrInvalidKey
	}
	return NewSignerFromKey(network, kp, opts...)
}

// NewSignerFromKey creates a signer from an existing keypair.
func NewSignerFromKey(network string, kp *keypair.Full, opts ...Option) (*Signer, error) {
	if kp == nil {
		return nil, x402.ErrInvalidKey
	}
	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return nil, err
	}
	if networkType != x402.NetworkTypeStellar {
		return nil, fmt.Errorf("%w: expected Stellar network, got %s", x402.ErrInvalidNetwork, network)
	}
	passphrase, err := x402.StellarPassphrase(network)
	if err != nil {
		return nil, err
	}

	s := &Signer{
		kp:         kp,
		network:    network,
		passphrase: passphrase,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WithMaxFee refuses to sign transactions whose total fee in stroops
// exceeds fee. The facilitator pays the fee of everything it signs.
func WithMaxFee(fee uint32) Option {
	return func(s *Signer) error {
		if fee == 0 {
			return fmt.Errorf("%w: max fee must be positive", x402.ErrInvalidRequirements)
		}
		s.maxFee = fee
		return nil
	}
}

// Address returns the G... account address.
func (s *Signer) Address() string {
	return s.kp.Address()
}

// Network returns the x402 network name.
func (s *Signer) Network() string {
	return s.network
}

// Passphrase returns the network passphrase.
func (s *Signer) Passphrase() string {
	return s.passphrase
}

func (s *Signer) checkPassphrase(passphrase string) error {
	if passphrase != s.passphrase {
		return fmt.Errorf("%w: signer is bound to %s", x402.ErrInvalidNetwork, s.network)
	}
	return nil
}

// SignTransaction signs a base64 envelope and returns it with a decorated
// signature appended.
func (s *Signer) SignTransaction(ctx context.Context, txXDR string, networkPassphrase string) (string, error) {
	if err := s.checkPassphrase(networkPassphrase); err != nil {
		return "", err
	}

	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(txXDR, &env); err != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", x402.ErrSigningFailed, err)
	}
	if env.Type != xdr.EnvelopeTypeEnvelopeTypeTx || env.V1 == nil {
		return "", fmt.Errorf("%w: unsupported envelope type %s", x402.ErrSigningFailed, env.Type)
	}
	if s.maxFee > 0 && uint32(env.V1.Tx.Fee) > s.maxFee {
		return "", fmt.Errorf("%w: fee %d exceeds limit %d", x402.ErrSigningFailed, env.V1.Tx.Fee, s.maxFee)
	}

	hash, err := network.HashTransactionInEnvelope(env, networkPassphrase)
	if err != nil {
		return "", fmt.Errorf("%w: hash: %v", x402.ErrSigningFailed, err)
	}
	sig, err := s.kp.SignDecorated(hash[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}
	env.V1.Signatures = append(env.V1.Signatures, sig)

	out, err := xdr.MarshalBase64(env)
	if err != nil {
		return "", fmt.Errorf("%w: encode envelope: %v", x402.ErrSigningFailed, err)
	}
	return out, nil
}

// SignAuthEntry signs the sha256 of a base64 HashIdPreimage and returns the
// base64 signature. The preimage must be a Soroban authorization preimage
// for the signer's network.
func (s *Signer) SignAuthEntry(ctx context.Context, preimageXDR string, networkPassphrase string) (string, error) {
	if err := s.checkPassphrase(networkPassphrase); err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(preimageXDR)
	if err != nil {
		return "", fmt.Errorf("%w: decode preimage: %v", x402.ErrSigningFailed, err)
	}
	var preimage xdr.HashIdPreimage
	if err := xdr.SafeUnmarshal(raw, &preimage); err != nil {
		return "", fmt.Errorf("%w: decode preimage: %v", x402.ErrSigningFailed, err)
	}
	if preimage.Type != xdr.EnvelopeTypeEnvelopeTypeSorobanAuthorization || preimage.SorobanAuthorization == nil {
		return "", fmt.Errorf("%w: preimage type %s", x402.ErrSigningFailed, preimage.Type)
	}
	if preimage.SorobanAuthorization.NetworkId != xdr.Hash(network.ID(networkPassphrase)) {
		return "", fmt.Errorf("%w: preimage network id mismatch", x402.ErrSigningFailed)
	}

	digest := sha256.Sum256(raw)
	sig, err := s.kp.Sign(digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
