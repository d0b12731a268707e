package stellar

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/stellar/go/network"
	"github.com/stellar/go/xdr"
)

// ContractSigners partitions the address-credential authorizers of an
// invocation. Each address appears at most once per set.
type ContractSigners struct {
	AlreadySigned    map[string]struct{}
	PendingSignature map[string]struct{}
}

func newContractSigners() ContractSigners {
	return ContractSigners{
		AlreadySigned:    make(map[string]struct{}),
		PendingSignature: make(map[string]struct{}),
	}
}

// IsSigned reports whether address carries an embedded signature.
func (c ContractSigners) IsSigned(address string) bool {
	_, ok := c.AlreadySigned[address]
	return ok
}

// Signed returns the signed addresses in lexical order.
func (c ContractSigners) Signed() []string {
	return sortedKeys(c.AlreadySigned)
}

// Pending returns the addresses still awaiting a signature in lexical order.
func (c ContractSigners) Pending() []string {
	return sortedKeys(c.PendingSignature)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AuditAuthEntries classifies the authorization entries of the single
// invocation in tx. With assemble set, the transaction is first bound to
// sim (see Assemble) and the assembled entries are audited instead.
func AuditAuthEntries(tx *Transaction, sim *SimulationResult, assemble bool) (ContractSigners, error) {
	if assemble {
		if sim == nil {
			return ContractSigners{}, fmt.Errorf("assemble: no simulation result")
		}
		assembled, err := Assemble(tx, sim)
		if err != nil {
			return ContractSigners{}, err
		}
		tx = assembled
	}

	inv, err := tx.Invocation()
	if err != nil {
		return ContractSigners{}, err
	}

	signers := newContractSigners()
	for i, entry := range inv.Auth {
		switch entry.Credentials.Type {
		case xdr.SorobanCredentialsTypeSorobanCredentialsSourceAccount:
			continue
		case xdr.SorobanCredentialsTypeSorobanCredentialsAddress:
			creds := entry.Credentials.Address
			if creds == nil {
				return ContractSigners{}, fmt.Errorf("auth entry %d: missing address credentials", i)
			}
			addr, err := ScAddressString(creds.Address)
			if err != nil {
				return ContractSigners{}, fmt.Errorf("auth entry %d: %w", i, err)
			}
			if signatureEmpty(creds.Signature) {
				signers.PendingSignature[addr] = struct{}{}
			} else {
				signers.AlreadySigned[addr] = struct{}{}
			}
		default:
			return ContractSigners{}, fmt.Errorf("auth entry %d: credential type %s", i, entry.Credentials.Type)
		}
	}
	return signers, nil
}

// signatureEmpty reports whether an address credential's signature slot is
// unset. Unsigned entries carry void; an empty vector is treated alike.
func signatureEmpty(sig xdr.ScVal) bool {
	switch sig.Type {
	case xdr.ScValTypeScvVoid:
		return true
	case xdr.ScValTypeScvVec:
		return sig.Vec == nil || *sig.Vec == nil || len(**sig.Vec) == 0
	default:
		return false
	}
}

// Assemble returns a copy of tx bound to a simulation: the soroban data is
// replaced, the fee becomes the inclusion fee plus the simulated minimum
// resource fee, and recorded auth entries are adopted when the operation
// carries none. tx itself is not modified.
func Assemble(tx *Transaction, sim *SimulationResult) (*Transaction, error) {
	if _, err := tx.Invocation(); err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	env, err := cloneEnvelope(tx.Envelope)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	var data xdr.SorobanTransactionData
	if err := xdr.SafeUnmarshalBase64(sim.TransactionData, &data); err != nil {
		return nil, fmt.Errorf("assemble: decode transaction data: %w", err)
	}

	inclusion := int64(env.V1.Tx.Fee) - int64(tx.SorobanData.ResourceFee)
	if inclusion < 0 {
		inclusion = 0
	}
	fee := inclusion + sim.MinResourceFee
	if fee < 0 || fee > math.MaxUint32 {
		return nil, fmt.Errorf("assemble: fee %d out of range", fee)
	}
	env.V1.Tx.Fee = xdr.Uint32(fee)
	env.V1.Tx.Ext = xdr.TransactionExt{V: 1, SorobanData: &data}

	op := env.V1.Tx.Operations[0].Body.InvokeHostFunctionOp
	if len(op.Auth) == 0 && len(sim.Auth) > 0 {
		auth := make([]xdr.SorobanAuthorizationEntry, len(sim.Auth))
		for i, raw := range sim.Auth {
			if err := xdr.SafeUnmarshalBase64(raw, &auth[i]); err != nil {
				return nil, fmt.Errorf("assemble: decode auth entry %d: %w", i, err)
			}
		}
		op.Auth = auth
	}

	hash, err := network.HashTransactionInEnvelope(env, tx.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("assemble: hash: %w", err)
	}

	return &Transaction{
		Network:     tx.Network,
		Passphrase:  tx.Passphrase,
		Envelope:    env,
		Source:      tx.Source,
		Hash:        hex.EncodeToString(hash[:]),
		SorobanData: data,
	}, nil
}

// cloneEnvelope deep-copies an envelope through its wire form.
func cloneEnvelope(env xdr.TransactionEnvelope) (xdr.TransactionEnvelope, error) {
	raw, err := env.MarshalBinary()
	if err != nil {
		return xdr.TransactionEnvelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	var out xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshal(raw, &out); err != nil {
		return xdr.TransactionEnvelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return out, nil
}
