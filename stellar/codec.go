package stellar

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/stellar/go/network"
	"github.com/stellar/go/xdr"

	x402 "github.com/nacorid/x402-stellar"
)

// TransferFunction is the token entry point a payment must invoke.
const TransferFunction = "transfer"

var (
	// ErrMalformedTransaction is returned when the envelope cannot be decoded
	// under the claimed network.
	ErrMalformedTransaction = errors.New("stellar: malformed transaction envelope")

	// ErrMissingSorobanData is returned when the envelope carries no
	// resource footprint. Authorization signatures are bound to it and the
	// facilitator never re-simulates before settlement.
	ErrMissingSorobanData = errors.New("stellar: transaction has no soroban resource data")

	// ErrNotSingleInvocation is returned when a transaction is not exactly
	// one contract invocation operation.
	ErrNotSingleInvocation = errors.New("stellar: transaction is not a single contract invocation")
)

// Transaction is a decoded client payment transaction. The envelope is
// never mutated; settlement builds a new one.
type Transaction struct {
	// Network is the x402 network name the envelope was decoded under.
	Network string

	// Passphrase is the network passphrase used for hashing.
	Passphrase string

	// Envelope is the decoded v1 envelope.
	Envelope xdr.TransactionEnvelope

	// Source is the transaction source account (G..., demultiplexed).
	Source string

	// Hash is the hex transaction hash under Passphrase.
	Hash string

	// SorobanData is the resource footprint and fee data of the envelope.
	SorobanData xdr.SorobanTransactionData
}

// Invocation is the contract call carried by a single InvokeHostFunction
// operation.
type Invocation struct {
	// Contract is the invoked contract (C...).
	Contract string

	// Function is the invoked entry point.
	Function string

	// Args are the positional arguments.
	Args []xdr.ScVal

	// Auth are the authorization entries attached to the operation.
	Auth []xdr.SorobanAuthorizationEntry

	// Source is the operation-level source override (G...) or empty.
	Source string
}

// DecodeTransaction decodes a base64 XDR envelope for a Stellar network.
// The network selects the passphrase used for the transaction hash.
func DecodeTransaction(txXDR, networkName string) (*Transaction, error) {
	passphrase, err := x402.StellarPassphrase(networkName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(txXDR, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if env.Type != xdr.EnvelopeTypeEnvelopeTypeTx || env.V1 == nil {
		return nil, fmt.Errorf("%w: envelope type %s", ErrMalformedTransaction, env.Type)
	}

	source, err := MuxedAccountAddress(env.V1.Tx.SourceAccount)
	if err != nil {
		return nil, fmt.Errorf("%w: source account: %v", ErrMalformedTransaction, err)
	}

	hash, err := network.HashTransactionInEnvelope(env, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: hash: %v", ErrMalformedTransaction, err)
	}

	if env.V1.Tx.Ext.V != 1 || env.V1.Tx.Ext.SorobanData == nil {
		return nil, ErrMissingSorobanData
	}

	return &Transaction{
		Network:     networkName,
		Passphrase:  passphrase,
		Envelope:    env,
		Source:      source,
		Hash:        hex.EncodeToString(hash[:]),
		SorobanData: *env.V1.Tx.Ext.SorobanData,
	}, nil
}

// Operations returns the operations of the envelope.
func (t *Transaction) Operations() []xdr.Operation {
	return t.Envelope.V1.Tx.Operations
}

// Fee returns the envelope's total fee (inclusion + resource).
func (t *Transaction) Fee() uint32 {
	return uint32(t.Envelope.V1.Tx.Fee)
}

// Invocation extracts the single contract invocation of the transaction.
func (t *Transaction) Invocation() (*Invocation, error) {
	ops := t.Operations()
	if len(ops) != 1 {
		return nil, fmt.Errorf("%w: %d operations", ErrNotSingleInvocation, len(ops))
	}
	op := ops[0]
	if op.Body.Type != xdr.OperationTypeInvokeHostFunction || op.Body.InvokeHostFunctionOp == nil {
		return nil, fmt.Errorf("%w: operation type %s", ErrNotSingleInvocation, op.Body.Type)
	}
	ihf := op.Body.InvokeHostFunctionOp
	if ihf.HostFunction.Type != xdr.HostFunctionTypeHostFunctionTypeInvokeContract || ihf.HostFunction.InvokeContract == nil {
		return nil, fmt.Errorf("%w: host function %s", ErrNotSingleInvocation, ihf.HostFunction.Type)
	}
	call := ihf.HostFunction.InvokeContract

	contract, err := ScAddressString(call.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: contract address: %v", ErrMalformedTransaction, err)
	}

	inv := &Invocation{
		Contract: contract,
		Function: string(call.FunctionName),
		Args:     call.Args,
		Auth:     ihf.Auth,
	}
	if op.SourceAccount != nil {
		src, err := MuxedAccountAddress(*op.SourceAccount)
		if err != nil {
			return nil, fmt.Errorf("%w: operation source: %v", ErrMalformedTransaction, err)
		}
		inv.Source = src
	}
	return inv, nil
}

// EncodeEnvelope renders an envelope as base64 XDR.
func EncodeEnvelope(env xdr.TransactionEnvelope) (string, error) {
	return xdr.MarshalBase64(env)
}

// ArgAddress decodes an address-typed argument.
func ArgAddress(v xdr.ScVal) (string, bool) {
	if v.Type != xdr.ScValTypeScvAddress || v.Address == nil {
		return "", false
	}
	s, err := ScAddressString(*v.Address)
	if err != nil {
		return "", false
	}
	return s, true
}

var (
	two64   = new(big.Int).Lsh(big.NewInt(1), 64)
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// ArgAmount decodes an i128 argument into an arbitrary precision integer.
func ArgAmount(v xdr.ScVal) (*big.Int, bool) {
	if v.Type != xdr.ScValTypeScvI128 || v.I128 == nil {
		return nil, false
	}
	hi := big.NewInt(int64(v.I128.Hi))
	lo := new(big.Int).SetUint64(uint64(v.I128.Lo))
	return hi.Mul(hi, two64).Add(hi, lo), true
}

// AmountVal encodes an integer as an i128 ScVal. It returns false when the
// value does not fit in 128 signed bits.
func AmountVal(amount *big.Int) (xdr.ScVal, bool) {
	if amount.Cmp(maxI128) > 0 || amount.Cmp(minI128) < 0 {
		return xdr.ScVal{}, false
	}
	hi := new(big.Int)
	lo := new(big.Int)
	hi.DivMod(amount, two64, lo) // Euclidean: lo in [0, 2^64)
	parts := xdr.Int128Parts{Hi: xdr.Int64(hi.Int64()), Lo: xdr.Uint64(lo.Uint64())}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}, true
}

// PayerOf returns the transfer's from address when the payload decodes as
// a Stellar transfer, and "" otherwise. It performs no validation.
func PayerOf(payload x402.PaymentPayload) string {
	sp, err := payload.StellarPayload()
	if err != nil {
		return ""
	}
	tx, err := DecodeTransaction(sp.Transaction, payload.Network)
	if err != nil {
		return ""
	}
	inv, err := tx.Invocation()
	if err != nil || len(inv.Args) == 0 {
		return ""
	}
	payer, _ := ArgAddress(inv.Args[0])
	return payer
}
