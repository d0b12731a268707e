// Package stellartest builds client payment transactions and an in-memory
// ledger for tests of packages layered on the stellar scheme.
package stellartest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	x402 "github.com/nacorid/x402-stellar"
	"github.com/nacorid/x402-stellar/stellar"
)

// ResourceFee is the resource fee carried by built transactions and
// reported by the Ledger simulation.
const ResourceFee = 50_000

// Payment describes one client payment.
type Payment struct {
	t       testing.TB
	Payer   *keypair.Full
	PayTo   string
	Asset   string
	Amount  string
	Network string
}

// NewPayment returns a payment of 1000000 units on stellar-testnet between
// fresh random accounts.
func NewPayment(t testing.TB) *Payment {
	t.Helper()
	return &Payment{
		t:       t,
		Payer:   Keypair(t),
		PayTo:   Keypair(t).Address(),
		Asset:   Contract(t),
		Amount:  "1000000",
		Network: x402.NetworkStellarTestnet,
	}
}

// Keypair returns a random account keypair.
func Keypair(t testing.TB) *keypair.Full {
	t.Helper()
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("keypair.Random() error = %v", err)
	}
	return kp
}

// Contract returns a random C... contract address.
func Contract(t testing.TB) string {
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

// Requirements returns requirements the payment satisfies.
func (p *Payment) Requirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           p.Network,
		MaxAmountRequired: p.Amount,
		Resource:          "https://api.example.com/report",
		Description:       "quarterly report",
		MimeType:          "application/json",
		PayTo:             p.PayTo,
		MaxTimeoutSeconds: 5,
		Asset:             p.Asset,
	}
}

// Payload returns the payment payload carrying TransactionXDR.
func (p *Payment) Payload() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     p.Network,
		Payload:     x402.StellarPayload{Transaction: p.TransactionXDR()},
	}
}

// TransactionXDR returns the base64 client envelope: a single transfer
// invocation with one signed address-credential entry for the payer.
func (p *Payment) TransactionXDR() string {
	p.t.Helper()
	env, err := p.envelope()
	if err != nil {
		p.t.Fatalf("build envelope: %v", err)
	}
	out, err := stellar.EncodeEnvelope(env)
	if err != nil {
		p.t.Fatalf("encode envelope: %v", err)
	}
	return out
}

func (p *Payment) envelope() (xdr.TransactionEnvelope, error) {
	from, err := stellar.ParseScAddress(p.Payer.Address())
	if err != nil {
		return xdr.TransactionEnvelope{}, err
	}
	to, err := stellar.ParseScAddress(p.PayTo)
	if err != nil {
		return xdr.TransactionEnvelope{}, err
	}
	asset, err := stellar.ParseScAddress(p.Asset)
	if err != nil {
		return xdr.TransactionEnvelope{}, err
	}
	n, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok {
		return xdr.TransactionEnvelope{}, fmt.Errorf("bad amount %q", p.Amount)
	}
	amount, ok := stellar.AmountVal(n)
	if !ok {
		return xdr.TransactionEnvelope{}, fmt.Errorf("amount %s overflows i128", p.Amount)
	}
	source, err := stellar.ParseMuxedAccount(p.Payer.Address())
	if err != nil {
		return xdr.TransactionEnvelope{}, err
	}

	sig := xdr.ScBytes(make([]byte, 64))
	vec := &xdr.ScVec{{Type: xdr.ScValTypeScvBytes, Bytes: &sig}}
	entry := xdr.SorobanAuthorizationEntry{
		Credentials: xdr.SorobanCredentials{
			Type: xdr.SorobanCredentialsTypeSorobanCredentialsAddress,
			Address: &xdr.SorobanAddressCredentials{
				Address:                   from,
				Nonce:                     1,
				SignatureExpirationLedger: 1000,
				Signature:                 xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &vec},
			},
		},
		RootInvocation: xdr.SorobanAuthorizedInvocation{
			Function: xdr.SorobanAuthorizedFunction{
				Type: xdr.SorobanAuthorizedFunctionTypeSorobanAuthorizedFunctionTypeContractFn,
				ContractFn: &xdr.InvokeContractArgs{
					ContractAddress: asset,
					FunctionName:    stellar.TransferFunction,
				},
			},
		},
	}

	data := xdr.SorobanTransactionData{ResourceFee: ResourceFee}
	return xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTx,
		V1: &xdr.TransactionV1Envelope{Tx: xdr.Transaction{
			SourceAccount: source,
			Fee:           xdr.Uint32(100 + ResourceFee),
			SeqNum:        1,
			Cond: xdr.Preconditions{
				Type:       xdr.PreconditionTypePrecondTime,
				TimeBounds: &xdr.TimeBounds{MaxTime: 1_900_000_000},
			},
			Memo: xdr.Memo{Type: xdr.MemoTypeMemoNone},
			Operations: []xdr.Operation{{
				Body: xdr.OperationBody{
					Type: xdr.OperationTypeInvokeHostFunction,
					InvokeHostFunctionOp: &xdr.InvokeHostFunctionOp{
						HostFunction: xdr.HostFunction{
							Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
							InvokeContract: &xdr.InvokeContractArgs{
								ContractAddress: asset,
								FunctionName:    stellar.TransferFunction,
								Args: []xdr.ScVal{
									stellar.AddressVal(from),
									stellar.AddressVal(to),
									amount,
								},
							},
						},
						Auth: []xdr.SorobanAuthorizationEntry{entry},
					},
				},
			}},
			Ext: xdr.TransactionExt{V: 1, SorobanData: &data},
		}},
	}, nil
}

// Ledger is an in-memory stellar.LedgerClient whose simulations succeed,
// whose submissions are accepted and whose transactions confirm on the
// first status query. Set the fields to script failures.
type Ledger struct {
	mu sync.Mutex

	SimulationError string
	SendStatus      stellar.SendStatus
	FinalStatus     stellar.TxStatus
	Sequence        int64

	Submitted []string
}

var _ stellar.LedgerClient = (*Ledger)(nil)

// NewLedger returns a ledger that accepts everything.
func NewLedger() *Ledger {
	return &Ledger{
		SendStatus:  stellar.SendPending,
		FinalStatus: stellar.TxSuccess,
		Sequence:    100,
	}
}

// SimulateTransaction implements stellar.LedgerClient.
func (l *Ledger) SimulateTransaction(_ context.Context, _ string) (*stellar.SimulationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SimulationError != "" {
		return &stellar.SimulationResult{Error: l.SimulationError}, nil
	}
	data, err := xdr.MarshalBase64(xdr.SorobanTransactionData{ResourceFee: ResourceFee})
	if err != nil {
		return nil, err
	}
	return &stellar.SimulationResult{TransactionData: data, MinResourceFee: ResourceFee, LatestLedger: 10}, nil
}

// GetAccount implements stellar.LedgerClient.
func (l *Ledger) GetAccount(_ context.Context, address string) (*stellar.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &stellar.Account{Address: address, Sequence: l.Sequence}, nil
}

// SendTransaction implements stellar.LedgerClient.
func (l *Ledger) SendTransaction(_ context.Context, txXDR string) (*stellar.SendResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Submitted = append(l.Submitted, txXDR)
	return &stellar.SendResult{Status: l.SendStatus}, nil
}

// GetTransaction implements stellar.LedgerClient.
func (l *Ledger) GetTransaction(_ context.Context, _ string) (*stellar.TransactionStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &stellar.TransactionStatus{Status: l.FinalStatus, Ledger: 11}, nil
}

// SubmittedCount returns how many envelopes were submitted.
func (l *Ledger) SubmittedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Submitted)
}
