// Package stellar verifies and settles x402 "exact" payments made as Soroban
// token transfers.
//
// A client signs the authorization entry of a transfer(from, to, amount)
// invocation and sends the transaction. The Facilitator checks that it pays
// the required amount of the required asset to the required recipient, then
// rebuilds it with its own account as source and fee payer, signs, submits
// and waits for the ledger to apply it. Neither Verify nor Settle keeps
// state between calls.
package stellar

import (
	"errors"
	"log/slog"
	"time"

	x402 "github.com/nacorid/x402-stellar"
)

// Facilitator runs the verify and settle pipelines against a ledger.
// It is safe for concurrent use.
type Facilitator struct {
	ledger       LedgerClient
	logger       *slog.Logger
	pollInterval time.Duration
	pollAttempts int
}

// Option configures a Facilitator.
type Option func(*Facilitator) error

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Facilitator) error {
		if logger != nil {
			f.logger = logger
		}
		return nil
	}
}

// WithPollInterval sets the delay between confirmation queries.
func WithPollInterval(d time.Duration) Option {
	return func(f *Facilitator) error {
		if d < 0 {
			return errors.New("x402: poll interval must not be negative")
		}
		f.pollInterval = d
		return nil
	}
}

// WithDefaultPollAttempts sets the confirmation budget used when the
// requirements carry no positive maxTimeoutSeconds.
func WithDefaultPollAttempts(n int) Option {
	return func(f *Facilitator) error {
		if n <= 0 {
			return errors.New("x402: poll attempts must be positive")
		}
		f.pollAttempts = n
		return nil
	}
}

// New creates a Facilitator over ledger.
func New(ledger LedgerClient, opts ...Option) (*Facilitator, error) {
	if ledger == nil {
		return nil, errors.New("x402: ledger client is required")
	}
	f := &Facilitator{
		ledger:       ledger,
		logger:       slog.Default(),
		pollInterval: x402.DefaultPollInterval,
		pollAttempts: x402.DefaultMaxTimeoutSeconds,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// attemptsFor derives the poll budget from the requirements.
func (f *Facilitator) attemptsFor(requirements x402.PaymentRequirements) int {
	if requirements.MaxTimeoutSeconds > 0 {
		return requirements.MaxTimeoutSeconds
	}
	return f.pollAttempts
}
