package stellar

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	x402 "github.com/nacorid/x402-stellar"
)

// AuthSigner is the capability SignAuthorization needs.
type AuthSigner interface {
	Address() string
	SignAuthEntry(ctx context.Context, preimageXDR string, networkPassphrase string) (string, error)
}

// SignAuthorization returns a copy of entry carrying signer's signature,
// valid up to and including ledger validUntil. The entry must use address
// credentials naming the signer's account.
func SignAuthorization(ctx context.Context, entry xdr.SorobanAuthorizationEntry, signer AuthSigner, validUntil uint32, networkPassphrase string) (xdr.SorobanAuthorizationEntry, error) {
	var out xdr.SorobanAuthorizationEntry
	raw, err := entry.MarshalBinary()
	if err != nil {
		return out, fmt.Errorf("%w: marshal entry: %v", x402.ErrSigningFailed, err)
	}
	if err := xdr.SafeUnmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: copy entry: %v", x402.ErrSigningFailed, err)
	}

	if out.Credentials.Type != xdr.SorobanCredentialsTypeSorobanCredentialsAddress || out.Credentials.Address == nil {
		return out, fmt.Errorf("%w: entry does not use address credentials", x402.ErrSigningFailed)
	}
	creds := out.Credentials.Address

	pub, err := strkey.Decode(strkey.VersionByteAccountID, signer.Address())
	if err != nil {
		return out, fmt.Errorf("%w: signer address: %v", x402.ErrInvalidKey, err)
	}
	if creds.Address.Type != xdr.ScAddressTypeScAddressTypeAccount || creds.Address.AccountId == nil || creds.Address.AccountId.Ed25519 == nil {
		return out, fmt.Errorf("%w: entry is not addressed to an account", x402.ErrSigningFailed)
	}
	credAddr, err := creds.Address.String()
	if err != nil {
		return out, fmt.Errorf("%w: credential address: %v", x402.ErrSigningFailed, err)
	}
	if credAddr != signer.Address() {
		return out, fmt.Errorf("%w: entry is not addressed to %s", x402.ErrSigningFailed, signer.Address())
	}

	preimage := xdr.HashIdPreimage{
		Type: xdr.EnvelopeTypeEnvelopeTypeSorobanAuthorization,
		SorobanAuthorization: &xdr.HashIdPreimageSorobanAuthorization{
			NetworkId:                 xdr.Hash(network.ID(networkPassphrase)),
			Nonce:                     creds.Nonce,
			SignatureExpirationLedger: xdr.Uint32(validUntil),
			Invocation:                out.RootInvocation,
		},
	}
	preimageXDR, err := xdr.MarshalBase64(preimage)
	if err != nil {
		return out, fmt.Errorf("%w: marshal preimage: %v", x402.ErrSigningFailed, err)
	}

	sigB64, err := signer.SignAuthEntry(ctx, preimageXDR, networkPassphrase)
	if err != nil {
		return out, err
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return out, fmt.Errorf("%w: decode signature: %v", x402.ErrSigningFailed, err)
	}

	creds.SignatureExpirationLedger = xdr.Uint32(validUntil)
	creds.Signature = accountSignature(pub, sig)
	return out, nil
}

// accountSignature builds the signature value the account contract
// expects: a vector of {public_key, signature} maps.
func accountSignature(pub, sig []byte) xdr.ScVal {
	entries := xdr.ScMap{
		{Key: symbol("public_key"), Val: bytesVal(pub)},
		{Key: symbol("signature"), Val: bytesVal(sig)},
	}
	m := &entries
	vec := &xdr.ScVec{{Type: xdr.ScValTypeScvMap, Map: &m}}
	return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &vec}
}

func symbol(s string) xdr.ScVal {
	sym := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

func bytesVal(b []byte) xdr.ScVal {
	v := xdr.ScBytes(b)
	return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &v}
}
