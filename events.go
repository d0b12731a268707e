package x402

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a verify or settle call started.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates the call produced a valid verification
	// or a confirmed settlement.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates the call was rejected or failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent represents a facilitator lifecycle event.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Method is the facilitator operation ("verify" or "settle").
	Method string

	// Amount is the payment amount in atomic units.
	Amount string

	// Asset is the token/asset address or identifier.
	Asset string

	// Network is the network name.
	Network string

	// Scheme is the payment scheme (e.g., "exact").
	Scheme string

	// Recipient is the payment recipient address.
	Recipient string

	// Payer is the address that made the payment, when known.
	Payer string

	// Transaction is the ledger transaction hash (settle only).
	Transaction string

	// Reason is the structured reason on failure.
	Reason ErrorReason

	// Duration is the time taken for the operation.
	Duration time.Duration
}

// PaymentCallback is a function that handles payment events.
// Callbacks are invoked synchronously, so they should be fast to avoid
// blocking the payment flow.
type PaymentCallback func(PaymentEvent)
