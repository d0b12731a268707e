package x402

import "errors"

// Sentinel errors for x402 payment operations.
var (
	// ErrInvalidAmount indicates an invalid amount string.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("x402: invalid private key")

	// ErrInvalidNetwork indicates an unsupported network.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrInvalidRequirements indicates the payment requirements are invalid.
	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")

	// ErrMalformedPayload indicates the payment payload cannot be decoded.
	ErrMalformedPayload = errors.New("x402: malformed payment payload")

	// ErrSigningFailed indicates a signing operation failed.
	ErrSigningFailed = errors.New("x402: signing failed")

	// ErrFacilitatorUnavailable indicates the facilitator service is unavailable.
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrSettlementFailed indicates payment settlement failed.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")

	// ErrMalformedHeader indicates the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")

	// ErrLedgerUnavailable indicates the ledger RPC could not be reached or
	// answered with a transport level error.
	ErrLedgerUnavailable = errors.New("x402: ledger rpc unavailable")

	// ErrAccountNotFound indicates the ledger has no entry for an account.
	ErrAccountNotFound = errors.New("x402: account not found")
)

// ErrorReason is the machine-readable reason carried by VerifyResponse and
// SettleResponse. Verify and settle never return domain failures as Go
// errors; they set one of these instead.
type ErrorReason string

const (
	ReasonInvalidVersion   ErrorReason = "invalid_x402_version"
	ReasonInvalidScheme    ErrorReason = "invalid_scheme"
	ReasonInvalidNetwork   ErrorReason = "invalid_network"
	ReasonMalformedPayload ErrorReason = "malformed_payload"

	ReasonWrongOperation     ErrorReason = "wrong_operation"
	ReasonWrongAsset         ErrorReason = "wrong_asset"
	ReasonWrongFunctionName  ErrorReason = "wrong_function_name"
	ReasonWrongFunctionArgs  ErrorReason = "wrong_function_args"
	ReasonWrongRecipient     ErrorReason = "wrong_recipient"
	ReasonWrongAmount        ErrorReason = "wrong_amount"
	ReasonSimulationFailed   ErrorReason = "simulation_failed"
	ReasonUnsafeSource       ErrorReason = "unsafe_tx_or_op_source"
	ReasonMissingPayerSig    ErrorReason = "missing_payer_signature"
	ReasonUnexpectedPending  ErrorReason = "unexpected_pending_signatures"
	ReasonSigningFailed      ErrorReason = "transaction_signing_failed"
	ReasonSubmissionFailed   ErrorReason = "transaction_submission_failed"
	ReasonTransactionFailed  ErrorReason = "transaction_failed"
	ReasonUnexpectedVerify   ErrorReason = "unexpected_verify_error"
	ReasonUnexpectedSettle   ErrorReason = "unexpected_settle_error"
	ReasonUnexpected         ErrorReason = "unexpected_error"
)

// String implements fmt.Stringer.
func (r ErrorReason) String() string {
	return string(r)
}

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeInvalidRequirements indicates invalid server requirements.
	ErrCodeInvalidRequirements ErrorCode = "INVALID_REQUIREMENTS"

	// ErrCodeSigningFailed indicates signing operation failed.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"

	// ErrCodeNetworkError indicates network communication error.
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"

	// ErrCodeUnsupportedScheme indicates unsupported payment scheme or network.
	ErrCodeUnsupportedScheme ErrorCode = "UNSUPPORTED_SCHEME"

	// ErrCodeUnsupportedVersion indicates unsupported x402 protocol version.
	ErrCodeUnsupportedVersion ErrorCode = "UNSUPPORTED_VERSION"
)

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
