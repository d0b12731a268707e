package stellar

import (
	"errors"
	"fmt"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

var errUnsupportedAddress = errors.New("unsupported address kind")

// ScAddressString renders an ScAddress as a G... or C... strkey. Muxed,
// claimable balance and liquidity pool addresses are rejected.
func ScAddressString(addr xdr.ScAddress) (string, error) {
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		if addr.AccountId == nil || addr.AccountId.Ed25519 == nil {
			return "", fmt.Errorf("%w: empty account key", errUnsupportedAddress)
		}
	case xdr.ScAddressTypeScAddressTypeContract:
		if addr.ContractId == nil {
			return "", fmt.Errorf("%w: empty contract id", errUnsupportedAddress)
		}
	default:
		return "", fmt.Errorf("%w: type %d", errUnsupportedAddress, addr.Type)
	}
	return addr.String()
}

// ParseScAddress converts a G... or C... strkey into an ScAddress.
func ParseScAddress(address string) (xdr.ScAddress, error) {
	if id, err := strkey.Decode(strkey.VersionByteContract, address); err == nil {
		var contract xdr.ContractId
		copy(contract[:], id)
		return xdr.NewScAddress(xdr.ScAddressTypeScAddressTypeContract, contract)
	}
	account, err := ParseAccountID(address)
	if err != nil {
		return xdr.ScAddress{}, err
	}
	return xdr.NewScAddress(xdr.ScAddressTypeScAddressTypeAccount, account)
}

// MuxedAccountAddress returns the underlying G... account of a muxed
// account. The multiplexing id is dropped: a muxed facilitator account is
// still the facilitator.
func MuxedAccountAddress(m xdr.MuxedAccount) (string, error) {
	switch m.Type {
	case xdr.CryptoKeyTypeKeyTypeEd25519:
		if m.Ed25519 == nil {
			return "", fmt.Errorf("%w: empty account key", errUnsupportedAddress)
		}
	case xdr.CryptoKeyTypeKeyTypeMuxedEd25519:
		if m.Med25519 == nil {
			return "", fmt.Errorf("%w: empty muxed account", errUnsupportedAddress)
		}
	default:
		return "", fmt.Errorf("%w: key type %d", errUnsupportedAddress, m.Type)
	}
	id := m.ToAccountId()
	return id.GetAddress()
}

// ParseMuxedAccount converts a G... strkey into an unmultiplexed MuxedAccount.
func ParseMuxedAccount(address string) (xdr.MuxedAccount, error) {
	if _, err := strkey.Decode(strkey.VersionByteAccountID, address); err != nil {
		return xdr.MuxedAccount{}, fmt.Errorf("%w: %q", errUnsupportedAddress, address)
	}
	return xdr.AddressToMuxedAccount(address)
}

// ParseAccountID converts a G... strkey into an AccountId.
func ParseAccountID(address string) (xdr.AccountId, error) {
	id, err := xdr.AddressToAccountId(address)
	if err != nil {
		return xdr.AccountId{}, fmt.Errorf("%w: %q", errUnsupportedAddress, address)
	}
	return id, nil
}

// AddressVal wraps an ScAddress as an ScVal.
func AddressVal(addr xdr.ScAddress) xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &addr}
}
