package stellar

import (
	"context"
	"fmt"

	x402 "github.com/nacorid/x402-stellar"
)

// verification is the internal outcome of the verify pipeline. Settlement
// consumes the decoded transaction; callers of Verify only see the response.
type verification struct {
	payer  string
	reason x402.ErrorReason
	tx     *Transaction
}

func (v verification) response() x402.VerifyResponse {
	return x402.VerifyResponse{
		IsValid:       v.reason == "",
		InvalidReason: v.reason,
		Payer:         v.payer,
	}
}

// Verify checks that payload pays requirements and that the facilitator
// identified by id can settle it without signing anything on the payer's
// behalf. It never returns an error; every failure is a reason in the
// response.
func (f *Facilitator) Verify(ctx context.Context, id Identity, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (resp x402.VerifyResponse) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("verify panicked", "panic", fmt.Sprint(r), "network", requirements.Network)
			resp = x402.VerifyResponse{InvalidReason: x402.ReasonUnexpectedVerify, Payer: resp.Payer}
		}
	}()

	v := f.verify(ctx, id, payload, requirements, &resp)
	resp = v.response()
	if v.reason != "" {
		f.logger.Info("payment rejected",
			"reason", v.reason,
			"payer", v.payer,
			"network", requirements.Network,
		)
	} else {
		f.logger.Debug("payment verified", "payer", v.payer, "network", requirements.Network)
	}
	return resp
}

// verify runs Decoding, Validating, Simulating and Auditing in order,
// stopping at the first failure. The payer is mirrored into partial as soon
// as it is known so a panic further down still reports it.
func (f *Facilitator) verify(ctx context.Context, id Identity, payload x402.PaymentPayload, requirements x402.PaymentRequirements, partial *x402.VerifyResponse) verification {
	if reason := CheckEnvelope(payload, requirements); reason != "" {
		return verification{reason: reason}
	}

	// Decoding
	sp, err := payload.StellarPayload()
	if err != nil || sp.Transaction == "" {
		return verification{reason: x402.ReasonMalformedPayload}
	}
	tx, err := DecodeTransaction(sp.Transaction, payload.Network)
	if err != nil {
		f.logger.Debug("decode failed", "error", err)
		return verification{reason: x402.ReasonMalformedPayload}
	}

	// Validating
	payer, reason := ValidateTransfer(tx, requirements)
	partial.Payer = payer
	if reason != "" {
		return verification{payer: payer, reason: reason, tx: tx}
	}

	// Simulating
	sim, outcome, err := Simulate(ctx, f.ledger, tx)
	if outcome != SimulationSucceeded {
		f.logger.Info("simulation rejected payment",
			"outcome", outcome.String(),
			"error", err,
			"payer", payer,
		)
		return verification{payer: payer, reason: x402.ReasonSimulationFailed, tx: tx}
	}

	// Auditing
	if reason := checkSources(tx, id.Address()); reason != "" {
		return verification{payer: payer, reason: reason, tx: tx}
	}
	signers, err := AuditAuthEntries(tx, sim, true)
	if err != nil {
		f.logger.Warn("auth entry audit failed", "error", err, "payer", payer)
		return verification{payer: payer, reason: x402.ReasonUnexpectedVerify, tx: tx}
	}
	if !signers.IsSigned(payer) {
		return verification{payer: payer, reason: x402.ReasonMissingPayerSig, tx: tx}
	}
	// from must be the only signed authorizer.
	if len(signers.AlreadySigned) > 1 {
		f.logger.Debug("extra signed authorizers", "signed", signers.Signed())
		return verification{payer: payer, reason: x402.ReasonUnexpectedPending, tx: tx}
	}
	if pending := signers.Pending(); len(pending) > 0 {
		f.logger.Debug("unsigned authorizers", "pending", pending)
		return verification{payer: payer, reason: x402.ReasonUnexpectedPending, tx: tx}
	}

	return verification{payer: payer, tx: tx}
}

// checkSources rejects transactions whose transaction or operation source is
// the facilitator. Such a transaction would move the facilitator's own funds
// once it signs as source.
func checkSources(tx *Transaction, facilitator string) x402.ErrorReason {
	if tx.Source == facilitator {
		return x402.ReasonUnsafeSource
	}
	inv, err := tx.Invocation()
	if err != nil {
		return x402.ReasonWrongOperation
	}
	if inv.Source != "" && inv.Source == facilitator {
		return x402.ReasonUnsafeSource
	}
	return ""
}
