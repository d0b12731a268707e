package stellar

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/stellar/go/network"
	"github.com/stellar/go/xdr"

	x402 "github.com/nacorid/x402-stellar"
)

// ErrSignatureMismatch is returned when a signer hands back an envelope
// that is not the one it was asked to sign.
var ErrSignatureMismatch = errors.New("stellar: signed envelope does not match rebuilt transaction")

// Settle re-verifies payload, rebuilds it with the signer's account as
// source and fee payer, signs, submits and waits for the ledger to apply
// it. Like Verify it never returns an error.
func (f *Facilitator) Settle(ctx context.Context, signer Signer, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (resp x402.SettleResponse) {
	resp.Network = requirements.Network
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("settle panicked",
				"panic", fmt.Sprint(r),
				"transaction", resp.Transaction,
				"network", requirements.Network,
			)
			resp = x402.SettleResponse{
				ErrorReason: x402.ReasonUnexpectedSettle,
				Transaction: resp.Transaction,
				Network:     requirements.Network,
				Payer:       resp.Payer,
			}
		}
	}()

	// Verifying
	var partial x402.VerifyResponse
	v := f.verify(ctx, signer, payload, requirements, &partial)
	resp.Payer = v.payer
	if v.reason != "" {
		resp.ErrorReason = v.reason
		f.logger.Info("settlement refused", "reason", v.reason, "payer", v.payer)
		return resp
	}

	// Rebuilding
	account, err := f.ledger.GetAccount(ctx, signer.Address())
	if err != nil || account == nil {
		f.logger.Error("fetch facilitator account", "error", err, "address", signer.Address())
		resp.ErrorReason = x402.ReasonUnexpectedSettle
		return resp
	}
	env, err := Rebuild(v.tx, signer.Address(), account.Sequence)
	if err != nil {
		f.logger.Error("rebuild transaction", "error", err)
		resp.ErrorReason = x402.ReasonUnexpectedSettle
		return resp
	}
	unsigned, err := EncodeEnvelope(env)
	if err != nil {
		resp.ErrorReason = x402.ReasonUnexpectedSettle
		return resp
	}

	// Signing
	signed, hash, err := f.sign(ctx, signer, unsigned, env, v.tx.Passphrase)
	if err != nil {
		f.logger.Error("sign transaction", "error", err)
		resp.ErrorReason = x402.ReasonSigningFailed
		return resp
	}

	// Submitting
	sent, err := f.ledger.SendTransaction(ctx, signed)
	if err != nil || sent == nil || sent.Status != SendPending {
		attrs := []any{"error", err, "payer", v.payer}
		if sent != nil {
			attrs = append(attrs, "status", string(sent.Status), "error_result", sent.ErrorResultXDR)
		}
		f.logger.Info("submission rejected", attrs...)
		resp.ErrorReason = x402.ReasonSubmissionFailed
		return resp
	}
	if sent.Hash != "" {
		hash = sent.Hash
	}
	resp.Transaction = hash
	f.logger.Info("transaction submitted", "transaction", hash, "payer", v.payer)

	// Polling
	start := time.Now()
	res := PollTransaction(ctx, f.ledger, hash, f.attemptsFor(requirements), f.pollInterval)
	f.logger.Info("transaction final status",
		"transaction", hash,
		"outcome", res.Outcome.String(),
		"attempt", res.Attempts,
		"duration", time.Since(start),
	)
	if res.Outcome != PollSucceeded {
		if res.LastErr != nil {
			f.logger.Debug("last status query error", "error", res.LastErr)
		}
		resp.ErrorReason = x402.ReasonTransactionFailed
		return resp
	}

	resp.Success = true
	return resp
}

// Rebuild returns a copy of the client envelope with source as transaction
// source and fee payer and sequence+1 as sequence number. Fee,
// preconditions, memo, the operation with its auth entries and source
// override, and the soroban data are kept as they are. Signatures are
// dropped.
func Rebuild(tx *Transaction, source string, sequence int64) (xdr.TransactionEnvelope, error) {
	muxed, err := ParseMuxedAccount(source)
	if err != nil {
		return xdr.TransactionEnvelope{}, fmt.Errorf("facilitator account: %w", err)
	}
	env, err := cloneEnvelope(tx.Envelope)
	if err != nil {
		return xdr.TransactionEnvelope{}, err
	}
	env.V1.Tx.SourceAccount = muxed
	env.V1.Tx.SeqNum = xdr.SequenceNumber(sequence + 1)
	env.V1.Signatures = nil
	return env, nil
}

// sign asks signer to sign unsigned and checks that the result is the
// rebuilt transaction with at least one signature. It returns the signed
// envelope and its hex hash.
func (f *Facilitator) sign(ctx context.Context, signer Signer, unsigned string, env xdr.TransactionEnvelope, passphrase string) (string, string, error) {
	want, err := network.HashTransactionInEnvelope(env, passphrase)
	if err != nil {
		return "", "", fmt.Errorf("hash rebuilt transaction: %w", err)
	}

	signed, err := signer.SignTransaction(ctx, unsigned, passphrase)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}

	var got xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(signed, &got); err != nil {
		return "", "", fmt.Errorf("decode signed envelope: %w", err)
	}
	if got.Type != xdr.EnvelopeTypeEnvelopeTypeTx || got.V1 == nil || len(got.V1.Signatures) == 0 {
		return "", "", ErrSignatureMismatch
	}
	hash, err := network.HashTransactionInEnvelope(got, passphrase)
	if err != nil {
		return "", "", fmt.Errorf("hash signed envelope: %w", err)
	}
	if hash != want {
		return "", "", ErrSignatureMismatch
	}
	return signed, hex.EncodeToString(hash[:]), nil
}
