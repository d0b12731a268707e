package stellar

import (
	x402 "github.com/nacorid/x402-stellar"
)

// CheckEnvelope runs the checks that need no decoding: protocol version,
// scheme and network. The network must be known before the transaction can
// be decoded, because it selects the hashing passphrase.
func CheckEnvelope(payload x402.PaymentPayload, requirements x402.PaymentRequirements) x402.ErrorReason {
	if payload.X402Version != x402.X402Version {
		return x402.ReasonInvalidVersion
	}
	if payload.Scheme != x402.SchemeExact || requirements.Scheme != x402.SchemeExact {
		return x402.ReasonInvalidScheme
	}
	if payload.Network != requirements.Network {
		return x402.ReasonInvalidNetwork
	}
	if family, err := x402.ValidateNetwork(requirements.Network); err != nil || family != x402.NetworkTypeStellar {
		return x402.ReasonInvalidNetwork
	}
	return ""
}

// ValidateTransfer compares a decoded transaction against the requirements,
// short-circuiting on the first mismatch. Once the invocation arguments are
// readable the first argument is reported as payer, on success and on
// failure alike.
func ValidateTransfer(tx *Transaction, requirements x402.PaymentRequirements) (payer string, reason x402.ErrorReason) {
	inv, err := tx.Invocation()
	if err != nil {
		return "", x402.ReasonWrongOperation
	}

	if len(inv.Args) > 0 {
		payer, _ = ArgAddress(inv.Args[0])
	}

	if inv.Function != TransferFunction {
		return payer, x402.ReasonWrongFunctionName
	}
	if len(inv.Args) != 3 {
		return payer, x402.ReasonWrongFunctionArgs
	}
	if payer == "" {
		return "", x402.ReasonWrongFunctionArgs
	}

	if inv.Contract != requirements.Asset {
		return payer, x402.ReasonWrongAsset
	}

	to, ok := ArgAddress(inv.Args[1])
	if !ok || to != requirements.PayTo {
		return payer, x402.ReasonWrongRecipient
	}

	amount, ok := ArgAmount(inv.Args[2])
	if !ok {
		return payer, x402.ReasonWrongAmount
	}
	want, err := x402.ParseAtomicAmount(requirements.MaxAmountRequired)
	if err != nil || amount.Cmp(want) != 0 {
		return payer, x402.ReasonWrongAmount
	}

	return payer, ""
}
