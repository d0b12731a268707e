package x402

import (
	"fmt"

	"github.com/stellar/go/network"
)

// NetworkType represents the ledger family a network belongs to.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM represents Ethereum Virtual Machine chains.
	NetworkTypeEVM
	// NetworkTypeSVM represents Solana Virtual Machine chains.
	NetworkTypeSVM
	// NetworkTypeStellar represents Stellar networks with Soroban contracts.
	NetworkTypeStellar
)

// String returns the family name used in logs.
func (t NetworkType) String() string {
	switch t {
	case NetworkTypeEVM:
		return "evm"
	case NetworkTypeSVM:
		return "svm"
	case NetworkTypeStellar:
		return "stellar"
	default:
		return "unknown"
	}
}

// x402 v1 network names
const (
	// Stellar networks
	NetworkStellar        = "stellar"
	NetworkStellarTestnet = "stellar-testnet"

	// EVM networks, recognised for routing only
	NetworkBase          = "base"
	NetworkBaseSepolia   = "base-sepolia"
	NetworkPolygon       = "polygon"
	NetworkPolygonAmoy   = "polygon-amoy"
	NetworkAvalanche     = "avalanche"
	NetworkAvalancheFuji = "avalanche-fuji"

	// Solana networks, recognised for routing only
	NetworkSolana       = "solana"
	NetworkSolanaDevnet = "solana-devnet"
)

var networkFamilies = map[string]NetworkType{
	NetworkStellar:        NetworkTypeStellar,
	NetworkStellarTestnet: NetworkTypeStellar,
	NetworkBase:           NetworkTypeEVM,
	NetworkBaseSepolia:    NetworkTypeEVM,
	NetworkPolygon:        NetworkTypeEVM,
	NetworkPolygonAmoy:    NetworkTypeEVM,
	NetworkAvalanche:      NetworkTypeEVM,
	NetworkAvalancheFuji:  NetworkTypeEVM,
	NetworkSolana:         NetworkTypeSVM,
	NetworkSolanaDevnet:   NetworkTypeSVM,
}

// ValidateNetwork returns the family of a v1 network name.
// Returns NetworkTypeUnknown with ErrInvalidNetwork for unrecognized names.
func ValidateNetwork(network string) (NetworkType, error) {
	if network == "" {
		return NetworkTypeUnknown, fmt.Errorf("%w: network cannot be empty", ErrInvalidNetwork)
	}
	t, ok := networkFamilies[network]
	if !ok {
		return NetworkTypeUnknown, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return t, nil
}

// StellarChainConfig holds configuration for a Stellar network.
type StellarChainConfig struct {
	// Network is the x402 network name.
	Network string

	// Passphrase is the network passphrase mixed into every transaction
	// and authorization hash.
	Passphrase string

	// USDCAddress is the Stellar asset contract of Circle USDC.
	USDCAddress string

	// Decimals is the number of decimal places of USDC on Stellar (7).
	Decimals uint8
}

// Predefined Stellar configurations
var (
	// StellarPubnet is the configuration for the Stellar public network.
	StellarPubnet = StellarChainConfig{
		Network:     NetworkStellar,
		Passphrase:  network.PublicNetworkPassphrase,
		USDCAddress: "CCW67TSZV3SSS2HXMBQ5JFGCKJNXKZM7UQUWUZPUTHXSTZLEO7SJMI75",
		Decimals:    7,
	}

	// StellarTestnet is the configuration for the Stellar test network.
	StellarTestnet = StellarChainConfig{
		Network:     NetworkStellarTestnet,
		Passphrase:  network.TestNetworkPassphrase,
		USDCAddress: "CBIELTK6YBZJU5UP2WWQEUCYKLPU6AUNZ2BQ4WWFEIE3USCIHMXQDAMA",
		Decimals:    7,
	}
)

var stellarConfigByNetwork = map[string]StellarChainConfig{
	NetworkStellar:        StellarPubnet,
	NetworkStellarTestnet: StellarTestnet,
}

// GetStellarChainConfig returns the configuration of a Stellar network.
func GetStellarChainConfig(network string) (StellarChainConfig, error) {
	config, ok := stellarConfigByNetwork[network]
	if !ok {
		return StellarChainConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return config, nil
}

// StellarPassphrase returns the network passphrase of a Stellar network.
func StellarPassphrase(network string) (string, error) {
	config, err := GetStellarChainConfig(network)
	if err != nil {
		return "", err
	}
	return config.Passphrase, nil
}

// StellarNetworks lists the Stellar networks this module can settle on.
func StellarNetworks() []string {
	return []string{NetworkStellar, NetworkStellarTestnet}
}
