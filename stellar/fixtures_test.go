package stellar

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	x402 "github.com/nacorid/x402-stellar"
)

const (
	testInclusionFee = 100
	testResourceFee  = 50_000
	testAmount       = "1000000"
)

// fixture holds the parties of one payment.
type fixture struct {
	t           *testing.T
	payer       *keypair.Full
	payTo       string
	asset       string
	facilitator *keypair.Full
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:           t,
		payer:       randomKeypair(t),
		payTo:       randomKeypair(t).Address(),
		asset:       randomContract(t),
		facilitator: randomKeypair(t),
	}
}

func randomKeypair(t *testing.T) *keypair.Full {
	t.Helper()
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("keypair.Random() error = %v", err)
	}
	return kp
}

func randomContract(t *testing.T) string {
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

func (f *fixture) requirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkStellarTestnet,
		MaxAmountRequired: testAmount,
		Resource:          "https://api.example.com/premium",
		Description:       "premium content",
		MimeType:          "application/json",
		PayTo:             f.payTo,
		MaxTimeoutSeconds: 60,
		Asset:             f.asset,
	}
}

// txShape describes the client transaction a test wants. The zero value of
// each field means "the honest payment".
type txShape struct {
	source    string
	opSource  string
	contract  string
	function  string
	args      []xdr.ScVal
	auth      []xdr.SorobanAuthorizationEntry
	noAuth    bool
	extraOp   bool
	noSoroban bool
	memo      string
}

func (f *fixture) scAddress(address string) xdr.ScAddress {
	f.t.Helper()
	addr, err := ParseScAddress(address)
	if err != nil {
		f.t.Fatalf("ParseScAddress(%s) error = %v", address, err)
	}
	return addr
}

func (f *fixture) muxed(address string) xdr.MuxedAccount {
	f.t.Helper()
	m, err := ParseMuxedAccount(address)
	if err != nil {
		f.t.Fatalf("ParseMuxedAccount(%s) error = %v", address, err)
	}
	return m
}

func (f *fixture) amountVal(amount string) xdr.ScVal {
	f.t.Helper()
	n, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		f.t.Fatalf("bad amount %q", amount)
	}
	v, ok := AmountVal(n)
	if !ok {
		f.t.Fatalf("amount %s does not fit i128", amount)
	}
	return v
}

// transferArgs returns transfer(from, to, amount).
func (f *fixture) transferArgs(from, to, amount string) []xdr.ScVal {
	return []xdr.ScVal{
		AddressVal(f.scAddress(from)),
		AddressVal(f.scAddress(to)),
		f.amountVal(amount),
	}
}

// authEntry is an address-credential entry for signer; signed entries get
// a non-empty signature vector.
func (f *fixture) authEntry(signer string, signed bool) xdr.SorobanAuthorizationEntry {
	sig := xdr.ScVal{Type: xdr.ScValTypeScvVoid}
	if signed {
		b := xdr.ScBytes(make([]byte, 64))
		vec := &xdr.ScVec{{Type: xdr.ScValTypeScvBytes, Bytes: &b}}
		sig = xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &vec}
	}
	contract := f.scAddress(f.asset)
	return xdr.SorobanAuthorizationEntry{
		Credentials: xdr.SorobanCredentials{
			Type: xdr.SorobanCredentialsTypeSorobanCredentialsAddress,
			Address: &xdr.SorobanAddressCredentials{
				Address:                   f.scAddress(signer),
				Nonce:                     1,
				SignatureExpirationLedger: 1000,
				Signature:                 sig,
			},
		},
		RootInvocation: xdr.SorobanAuthorizedInvocation{
			Function: xdr.SorobanAuthorizedFunction{
				Type: xdr.SorobanAuthorizedFunctionTypeSorobanAuthorizedFunctionTypeContractFn,
				ContractFn: &xdr.InvokeContractArgs{
					ContractAddress: contract,
					FunctionName:    TransferFunction,
				},
			},
		},
	}
}

func (f *fixture) sourceAccountEntry() xdr.SorobanAuthorizationEntry {
	return xdr.SorobanAuthorizationEntry{
		Credentials: xdr.SorobanCredentials{
			Type: xdr.SorobanCredentialsTypeSorobanCredentialsSourceAccount,
		},
		RootInvocation: xdr.SorobanAuthorizedInvocation{
			Function: xdr.SorobanAuthorizedFunction{
				Type: xdr.SorobanAuthorizedFunctionTypeSorobanAuthorizedFunctionTypeContractFn,
				ContractFn: &xdr.InvokeContractArgs{
					ContractAddress: f.scAddress(f.asset),
					FunctionName:    TransferFunction,
				},
			},
		},
	}
}

func (f *fixture) sorobanData() xdr.SorobanTransactionData {
	return xdr.SorobanTransactionData{ResourceFee: testResourceFee}
}

// envelope builds the client transaction.
func (f *fixture) envelope(shape txShape) xdr.TransactionEnvelope {
	f.t.Helper()
	if shape.source == "" {
		shape.source = f.payer.Address()
	}
	if shape.contract == "" {
		shape.contract = f.asset
	}
	if shape.function == "" {
		shape.function = TransferFunction
	}
	if shape.args == nil {
		shape.args = f.transferArgs(f.payer.Address(), f.payTo, testAmount)
	}
	if shape.auth == nil && !shape.noAuth {
		shape.auth = []xdr.SorobanAuthorizationEntry{f.authEntry(f.payer.Address(), true)}
	}

	invoke := xdr.InvokeHostFunctionOp{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: f.scAddress(shape.contract),
				FunctionName:    xdr.ScSymbol(shape.function),
				Args:            shape.args,
			},
		},
		Auth: shape.auth,
	}
	op := xdr.Operation{
		Body: xdr.OperationBody{
			Type:                 xdr.OperationTypeInvokeHostFunction,
			InvokeHostFunctionOp: &invoke,
		},
	}
	if shape.opSource != "" {
		m := f.muxed(shape.opSource)
		op.SourceAccount = &m
	}
	ops := []xdr.Operation{op}
	if shape.extraOp {
		ops = append(ops, op)
	}

	memo := xdr.Memo{Type: xdr.MemoTypeMemoNone}
	if shape.memo != "" {
		text := shape.memo
		memo = xdr.Memo{Type: xdr.MemoTypeMemoText, Text: &text}
	}

	tx := xdr.Transaction{
		SourceAccount: f.muxed(shape.source),
		Fee:           xdr.Uint32(testInclusionFee + testResourceFee),
		SeqNum:        xdr.SequenceNumber(7_000_001),
		Cond: xdr.Preconditions{
			Type:       xdr.PreconditionTypePrecondTime,
			TimeBounds: &xdr.TimeBounds{MinTime: 0, MaxTime: 1_900_000_000},
		},
		Memo:       memo,
		Operations: ops,
	}
	if !shape.noSoroban {
		data := f.sorobanData()
		tx.Ext = xdr.TransactionExt{V: 1, SorobanData: &data}
	}

	return xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTx,
		V1:   &xdr.TransactionV1Envelope{Tx: tx},
	}
}

func (f *fixture) txXDR(shape txShape) string {
	f.t.Helper()
	out, err := EncodeEnvelope(f.envelope(shape))
	if err != nil {
		f.t.Fatalf("EncodeEnvelope() error = %v", err)
	}
	return out
}

func (f *fixture) payload(shape txShape) x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     x402.NetworkStellarTestnet,
		Payload:     x402.StellarPayload{Transaction: f.txXDR(shape)},
	}
}

func (f *fixture) decode(shape txShape) *Transaction {
	f.t.Helper()
	tx, err := DecodeTransaction(f.txXDR(shape), x402.NetworkStellarTestnet)
	if err != nil {
		f.t.Fatalf("DecodeTransaction() error = %v", err)
	}
	return tx
}

func (f *fixture) simulation() *SimulationResult {
	f.t.Helper()
	data, err := xdr.MarshalBase64(f.sorobanData())
	if err != nil {
		f.t.Fatalf("marshal soroban data: %v", err)
	}
	return &SimulationResult{
		TransactionData: data,
		MinResourceFee:  testResourceFee,
		LatestLedger:    500,
	}
}

func (f *fixture) signer() *mockSigner {
	return &mockSigner{kp: f.facilitator}
}

// mockLedger implements LedgerClient for testing.
type mockLedger struct {
	mu sync.Mutex

	sim    *SimulationResult
	simErr error

	account    *Account
	accountErr error

	send    *SendResult
	sendErr error

	// statuses are answered in order; the last one repeats.
	statuses []statusReply

	simulateCalls int
	accountCalls  int
	sendCalls     int
	getTxCalls    int
	sent          []string
}

type statusReply struct {
	status *TransactionStatus
	err    error
}

func newMockLedger(f *fixture) *mockLedger {
	return &mockLedger{
		sim:     f.simulation(),
		account: &Account{Address: f.facilitator.Address(), Sequence: 9_000},
		send:    &SendResult{Status: SendPending},
		statuses: []statusReply{
			{status: &TransactionStatus{Status: TxSuccess, Ledger: 501}},
		},
	}
}

func (m *mockLedger) SimulateTransaction(ctx context.Context, txXDR string) (*SimulationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateCalls++
	return m.sim, m.simErr
}

func (m *mockLedger) GetAccount(ctx context.Context, address string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountCalls++
	return m.account, m.accountErr
}

func (m *mockLedger) SendTransaction(ctx context.Context, txXDR string) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls++
	m.sent = append(m.sent, txXDR)
	return m.send, m.sendErr
}

func (m *mockLedger) GetTransaction(ctx context.Context, hash string) (*TransactionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getTxCalls++
	if len(m.statuses) == 0 {
		return &TransactionStatus{Status: TxNotFound}, nil
	}
	i := m.getTxCalls - 1
	if i >= len(m.statuses) {
		i = len(m.statuses) - 1
	}
	return m.statuses[i].status, m.statuses[i].err
}

// mockSigner implements Signer with a real keypair.
type mockSigner struct {
	kp      *keypair.Full
	err     error
	tamper  bool
	unsign  bool
	lastTx  string
	signed  int
	panicOn bool
}

func (s *mockSigner) Address() string { return s.kp.Address() }

func (s *mockSigner) SignAuthEntry(ctx context.Context, preimageXDR string, networkPassphrase string) (string, error) {
	return "", errors.New("not used")
}

func (s *mockSigner) SignTransaction(ctx context.Context, txXDR string, networkPassphrase string) (string, error) {
	if s.panicOn {
		panic("signer exploded")
	}
	if s.err != nil {
		return "", s.err
	}
	s.lastTx = txXDR
	s.signed++

	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(txXDR, &env); err != nil {
		return "", err
	}
	if s.tamper {
		env.V1.Tx.Fee++
	}
	if !s.unsign {
		hash, err := network.HashTransactionInEnvelope(env, networkPassphrase)
		if err != nil {
			return "", err
		}
		sig, err := s.kp.SignDecorated(hash[:])
		if err != nil {
			return "", err
		}
		env.V1.Signatures = append(env.V1.Signatures, sig)
	}
	return xdr.MarshalBase64(env)
}

// quietFacilitator builds a Facilitator that does not sleep between polls.
func quietFacilitator(t *testing.T, ledger LedgerClient, opts ...Option) *Facilitator {
	t.Helper()
	f, err := New(ledger, append([]Option{WithPollInterval(0)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}
