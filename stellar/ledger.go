package stellar

import "context"

// LedgerClient is the ledger capability the facilitator consumes. The
// Soroban RPC implementation lives in internal/sorobanrpc; tests use mocks.
type LedgerClient interface {
	// SimulateTransaction simulates a base64 XDR envelope.
	SimulateTransaction(ctx context.Context, txXDR string) (*SimulationResult, error)

	// GetAccount returns the current sequence state of a G... account.
	GetAccount(ctx context.Context, address string) (*Account, error)

	// SendTransaction submits a signed base64 XDR envelope.
	SendTransaction(ctx context.Context, txXDR string) (*SendResult, error)

	// GetTransaction returns the status of a submitted transaction.
	GetTransaction(ctx context.Context, hash string) (*TransactionStatus, error)
}

// SimulationResult is the outcome of a simulation.
type SimulationResult struct {
	// Error is set by the ledger when the invocation fails.
	Error string

	// TransactionData is the base64 SorobanTransactionData the simulation
	// computed for the invocation.
	TransactionData string

	// MinResourceFee is the resource fee in stroops.
	MinResourceFee int64

	// Auth holds base64 SorobanAuthorizationEntry values recorded during
	// simulation.
	Auth []string

	// RestorePreamble is set when archived ledger entries must be restored
	// before the invocation can run.
	RestorePreamble *RestorePreamble

	// LatestLedger is the ledger the simulation ran against.
	LatestLedger uint32
}

// RestorePreamble describes the restoration a simulation asks for.
type RestorePreamble struct {
	TransactionData string
	MinResourceFee  int64
}

// Account is the sequence state of an account.
type Account struct {
	Address  string
	Sequence int64
}

// SendStatus is the status of a transaction submission.
type SendStatus string

const (
	SendPending       SendStatus = "PENDING"
	SendDuplicate     SendStatus = "DUPLICATE"
	SendTryAgainLater SendStatus = "TRY_AGAIN_LATER"
	SendError         SendStatus = "ERROR"
)

// SendResult is what the ledger answers to a submission.
type SendResult struct {
	Status SendStatus
	Hash   string

	// ErrorResultXDR is the base64 TransactionResult when Status is ERROR.
	ErrorResultXDR string
}

// TxStatus is the on-ledger status of a submitted transaction.
type TxStatus string

const (
	TxSuccess  TxStatus = "SUCCESS"
	TxNotFound TxStatus = "NOT_FOUND"
	TxFailed   TxStatus = "FAILED"
)

// TransactionStatus is what the ledger answers to a status query.
type TransactionStatus struct {
	Status TxStatus
	Ledger uint32

	// ResultXDR is the base64 TransactionResult once applied.
	ResultXDR string
}

// Identity names the facilitator's own account. Verification needs no
// signing capability, only the address to guard against.
type Identity interface {
	Address() string
}

// Signer is the signing capability of a Stellar account. Implementations
// validate their key material at construction.
type Signer interface {
	Identity

	// SignAuthEntry signs a base64 HashIdPreimage of a Soroban
	// authorization entry and returns the base64 ed25519 signature.
	SignAuthEntry(ctx context.Context, preimageXDR string, networkPassphrase string) (string, error)

	// SignTransaction signs a base64 envelope and returns the envelope with
	// the signature appended.
	SignTransaction(ctx context.Context, txXDR string, networkPassphrase string) (string, error)
}
