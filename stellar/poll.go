package stellar

import (
	"context"
	"time"
)

// PollOutcome is the reason a confirmation loop stopped.
type PollOutcome int

const (
	// PollSucceeded means the ledger applied the transaction.
	PollSucceeded PollOutcome = iota
	// PollFailed means the ledger reported the transaction as failed.
	PollFailed
	// PollExhausted means the attempt budget ran out without a final status.
	PollExhausted
	// PollCanceled means the context ended before a final status.
	PollCanceled
)

func (o PollOutcome) String() string {
	switch o {
	case PollSucceeded:
		return "succeeded"
	case PollFailed:
		return "failed"
	case PollExhausted:
		return "exhausted"
	case PollCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// PollResult describes how a confirmation loop ended.
type PollResult struct {
	Outcome  PollOutcome
	Attempts int

	// Status is the last status the ledger answered, if any.
	Status *TransactionStatus

	// LastErr is the last query error. Query errors never stop the loop.
	LastErr error
}

// PollTransaction queries the status of hash up to attempts times, waiting
// interval between queries. Only SUCCESS and FAILED end the loop early.
func PollTransaction(ctx context.Context, ledger LedgerClient, hash string, attempts int, interval time.Duration) PollResult {
	var res PollResult
	for res.Attempts < attempts {
		if res.Attempts > 0 {
			if !sleep(ctx, interval) {
				res.Outcome = PollCanceled
				return res
			}
		}
		res.Attempts++

		status, err := ledger.GetTransaction(ctx, hash)
		if err != nil {
			res.LastErr = err
			if ctx.Err() != nil {
				res.Outcome = PollCanceled
				return res
			}
			continue
		}
		if status == nil {
			continue
		}
		res.Status = status

		switch status.Status {
		case TxSuccess:
			res.Outcome = PollSucceeded
			return res
		case TxFailed:
			res.Outcome = PollFailed
			return res
		}
	}
	res.Outcome = PollExhausted
	return res
}

// sleep waits for d or until ctx is done. It reports whether the wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
