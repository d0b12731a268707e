package stellar

import (
	"context"
	"fmt"
)

// SimulationOutcome classifies a re-simulation.
type SimulationOutcome int

const (
	// SimulationSucceeded means the invocation would run against current state.
	SimulationSucceeded SimulationOutcome = iota
	// SimulationNeedsRestore means archived state must be restored first.
	// The facilitator does not restore on behalf of clients.
	SimulationNeedsRestore
	// SimulationErrored means the ledger rejected the invocation or could
	// not be asked.
	SimulationErrored
)

func (o SimulationOutcome) String() string {
	switch o {
	case SimulationSucceeded:
		return "success"
	case SimulationNeedsRestore:
		return "restore_required"
	default:
		return "error"
	}
}

// Simulate re-simulates the client transaction. The client's own
// simulation is not trusted: chain state may have moved since signing.
func Simulate(ctx context.Context, ledger LedgerClient, tx *Transaction) (*SimulationResult, SimulationOutcome, error) {
	txXDR, err := EncodeEnvelope(tx.Envelope)
	if err != nil {
		return nil, SimulationErrored, fmt.Errorf("encode envelope: %w", err)
	}

	result, err := ledger.SimulateTransaction(ctx, txXDR)
	if err != nil {
		return nil, SimulationErrored, fmt.Errorf("simulate transaction: %w", err)
	}
	if result == nil {
		return nil, SimulationErrored, fmt.Errorf("simulate transaction: empty result")
	}

	switch {
	case result.Error != "":
		return result, SimulationErrored, fmt.Errorf("simulation error: %s", result.Error)
	case result.RestorePreamble != nil:
		return result, SimulationNeedsRestore, fmt.Errorf("simulation requires state restoration")
	default:
		return result, SimulationSucceeded, nil
	}
}
