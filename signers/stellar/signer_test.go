package stellar

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	x402 "github.com/nacorid/x402-stellar"
	core "github.com/nacorid/x402-stellar/stellar"
)

// newTestKeypair generates a fresh keypair so no secrets live in the repo.
func newTestKeypair(t *testing.T) *keypair.Full {
	t.Helper()
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("keypair.Random() error = %v", err)
	}
	return kp
}

func newTestContract(t *testing.T) string {
	t.Helper()
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}
	c, err := strkey.Encode(strkey.VersionByteContract, id)
	if err != nil {
		t.Fatalf("strkey.Encode() error = %v", err)
	}
	return c
}

func newTestEnvelope(t *testing.T, source string, fee uint32) string {
	t.Helper()
	src, err := core.ParseMuxedAccount(source)
	if err != nil {
		t.Fatalf("ParseMuxedAccount() error = %v", err)
	}
	env := xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTx,
		V1: &xdr.TransactionV1Envelope{
			Tx: xdr.Transaction{
				SourceAccount: src,
				Fee:           xdr.Uint32(fee),
				SeqNum:        xdr.SequenceNumber(42),
				Cond:          xdr.Preconditions{Type: xdr.PreconditionTypePrecondNone},
				Memo:          xdr.Memo{Type: xdr.MemoTypeMemoNone},
			},
		},
	}
	out, err := xdr.MarshalBase64(env)
	if err != nil {
		t.Fatalf("MarshalBase64() error = %v", err)
	}
	return out
}

func TestNewSigner(t *testing.T) {
	kp := newTestKeypair(t)

	tests := []struct {
		name      string
		network   string
		seed      string
		opts      []Option
		wantErr   bool
		errTarget error
	}{
		{
			name:    "valid testnet signer",
			network: x402.NetworkStellarTestnet,
			seed:    kp.Seed(),
		},
		{
			name:    "valid pubnet signer with max fee",
			network: x402.NetworkStellar,
			seed:    kp.Seed(),
			opts:    []Option{WithMaxFee(1_000_000)},
		},
		{
			name:      "malformed seed",
			network:   x402.NetworkStellarTestnet,
			seed:      "SNOTASEED",
			wantErr:   true,
			errTarget: x402.ErrInvalidKey,
		},
		{
			name:      "public address is not a seed",
			network:   x402.NetworkStellarTestnet,
			seed:      kp.Address(),
			wantErr:   true,
			errTarget: x402.ErrInvalidKey,
		},
		{
			name:      "evm network",
			network:   x402.NetworkBaseSepolia,
			seed:      kp.Seed(),
			wantErr:   true,
			errTarget: x402.ErrInvalidNetwork,
		},
		{
			name:      "unknown network",
			network:   "stellar-futurenet",
			seed:      kp.Seed(),
			wantErr:   true,
			errTarget: x402.ErrInvalidNetwork,
		},
		{
			name:      "zero max fee",
			network:   x402.NetworkStellarTestnet,
			seed:      kp.Seed(),
			opts:      []Option{WithMaxFee(0)},
			wantErr:   true,
			errTarget: x402.ErrInvalidRequirements,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewSigner(tt.network, tt.seed, tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errTarget != nil && !errors.Is(err, tt.errTarget) {
					t.Errorf("error = %v, want %v", err, tt.errTarget)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if signer.Address() != kp.Address() {
				t.Errorf("Address() = %s, want %s", signer.Address(), kp.Address())
			}
			if signer.Network() != tt.network {
				t.Errorf("Network() = %s, want %s", signer.Network(), tt.network)
			}
		})
	}
}

func TestSignTransaction(t *testing.T) {
	kp := newTestKeypair(t)
	signer, err := NewSigner(x402.NetworkStellarTestnet, kp.Seed())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	unsigned := newTestEnvelope(t, kp.Address(), 100)

	signed, err := signer.SignTransaction(context.Background(), unsigned, network.TestNetworkPassphrase)
	if err != nil {
		t.Fatalf("SignTransaction() error = %v", err)
	}

	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(signed, &env); err != nil {
		t.Fatalf("decode signed envelope: %v", err)
	}
	if len(env.V1.Signatures) != 1 {
		t.Fatalf("signatures = %d, want 1", len(env.V1.Signatures))
	}

	hash, err := network.HashTransactionInEnvelope(env, network.TestNetworkPassphrase)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := kp.Verify(hash[:], env.V1.Signatures[0].Signature); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
	if env.V1.Signatures[0].Hint != kp.Hint() {
		t.Errorf("hint = %x, want %x", env.V1.Signatures[0].Hint, kp.Hint())
	}
}

func TestSignTransactionRejects(t *testing.T) {
	kp := newTestKeypair(t)
	signer, err := NewSigner(x402.NetworkStellarTestnet, kp.Seed(), WithMaxFee(500))
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	tests := []struct {
		name       string
		txXDR      string
		passphrase string
		errTarget  error
	}{
		{
			name:       "wrong network passphrase",
			txXDR:      newTestEnvelope(t, kp.Address(), 100),
			passphrase: network.PublicNetworkPassphrase,
			errTarget:  x402.ErrInvalidNetwork,
		},
		{
			name:       "fee over limit",
			txXDR:      newTestEnvelope(t, kp.Address(), 501),
			passphrase: network.TestNetworkPassphrase,
			errTarget:  x402.ErrSigningFailed,
		},
		{
			name:       "garbage envelope",
			txXDR:      "bm90IHhkcg==",
			passphrase: network.TestNetworkPassphrase,
			errTarget:  x402.ErrSigningFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.SignTransaction(context.Background(), tt.txXDR, tt.passphrase)
			if !errors.Is(err, tt.errTarget) {
				t.Errorf("error = %v, want %v", err, tt.errTarget)
			}
		})
	}
}

func newTestAuthEntry(t *testing.T, from, contract string) xdr.SorobanAuthorizationEntry {
	t.Helper()
	fromAddr, err := core.ParseScAddress(from)
	if err != nil {
		t.Fatalf("ParseScAddress(from) error = %v", err)
	}
	contractAddr, err := core.ParseScAddress(contract)
	if err != nil {
		t.Fatalf("ParseScAddress(contract) error = %v", err)
	}
	return xdr.SorobanAuthorizationEntry{
		Credentials: xdr.SorobanCredentials{
			Type: xdr.SorobanCredentialsTypeSorobanCredentialsAddress,
			Address: &xdr.SorobanAddressCredentials{
				Address:   fromAddr,
				Nonce:     7,
				Signature: xdr.ScVal{Type: xdr.ScValTypeScvVoid},
			},
		},
		RootInvocation: xdr.SorobanAuthorizedInvocation{
			Function: xdr.SorobanAuthorizedFunction{
				Type: xdr.SorobanAuthorizedFunctionTypeSorobanAuthorizedFunctionTypeContractFn,
				ContractFn: &xdr.InvokeContractArgs{
					ContractAddress: contractAddr,
					FunctionName:    "transfer",
					Args:            []xdr.ScVal{core.AddressVal(fromAddr)},
				},
			},
		},
	}
}

func TestSignAuthorization(t *testing.T) {
	kp := newTestKeypair(t)
	signer, err := NewSigner(x402.NetworkStellarTestnet, kp.Seed())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	entry := newTestAuthEntry(t, kp.Address(), newTestContract(t))

	signed, err := SignAuthorization(context.Background(), entry, signer, 1234, network.TestNetworkPassphrase)
	if err != nil {
		t.Fatalf("SignAuthorization() error = %v", err)
	}

	if entry.Credentials.Address.Signature.Type != xdr.ScValTypeScvVoid {
		t.Error("input entry was modified")
	}
	creds := signed.Credentials.Address
	if creds.SignatureExpirationLedger != 1234 {
		t.Errorf("expiration = %d, want 1234", creds.SignatureExpirationLedger)
	}
	if creds.Signature.Type != xdr.ScValTypeScvVec || creds.Signature.Vec == nil || len(**creds.Signature.Vec) != 1 {
		t.Fatalf("signature is not a one-element vector: %v", creds.Signature.Type)
	}
	m := (**creds.Signature.Vec)[0]
	if m.Type != xdr.ScValTypeScvMap || m.Map == nil || len(**m.Map) != 2 {
		t.Fatalf("signature element is not a two-entry map")
	}
	entries := **m.Map
	if string(*entries[0].Key.Sym) != "public_key" || string(*entries[1].Key.Sym) != "signature" {
		t.Errorf("unexpected map keys %q, %q", *entries[0].Key.Sym, *entries[1].Key.Sym)
	}

	preimage := xdr.HashIdPreimage{
		Type: xdr.EnvelopeTypeEnvelopeTypeSorobanAuthorization,
		SorobanAuthorization: &xdr.HashIdPreimageSorobanAuthorization{
			NetworkId:                 xdr.Hash(network.ID(network.TestNetworkPassphrase)),
			Nonce:                     7,
			SignatureExpirationLedger: 1234,
			Invocation:                entry.RootInvocation,
		},
	}
	raw, err := preimage.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal preimage: %v", err)
	}
	digest := sha256.Sum256(raw)
	if err := kp.Verify(digest[:], []byte(*entries[1].Val.Bytes)); err != nil {
		t.Errorf("auth signature does not verify: %v", err)
	}
}

func TestSignAuthorizationRejectsForeignEntry(t *testing.T) {
	kp := newTestKeypair(t)
	other := newTestKeypair(t)
	signer, err := NewSigner(x402.NetworkStellarTestnet, kp.Seed())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	entry := newTestAuthEntry(t, other.Address(), newTestContract(t))

	_, err = SignAuthorization(context.Background(), entry, signer, 10, network.TestNetworkPassphrase)
	if !errors.Is(err, x402.ErrSigningFailed) {
		t.Errorf("error = %v, want ErrSigningFailed", err)
	}
}

func TestSignAuthEntryRejectsNetworkMismatch(t *testing.T) {
	kp := newTestKeypair(t)
	signer, err := NewSigner(x402.NetworkStellarTestnet, kp.Seed())
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	preimage := xdr.HashIdPreimage{
		Type: xdr.EnvelopeTypeEnvelopeTypeSorobanAuthorization,
		SorobanAuthorization: &xdr.HashIdPreimageSorobanAuthorization{
			NetworkId:  xdr.Hash(network.ID(network.PublicNetworkPassphrase)),
			Invocation: newTestAuthEntry(t, kp.Address(), newTestContract(t)).RootInvocation,
		},
	}
	raw, err := preimage.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal preimage: %v", err)
	}

	_, err = signer.SignAuthEntry(context.Background(), base64.StdEncoding.EncodeToString(raw), network.TestNetworkPassphrase)
	if !errors.Is(err, x402.ErrSigningFailed) {
		t.Errorf("error = %v, want ErrSigningFailed", err)
	}
}
