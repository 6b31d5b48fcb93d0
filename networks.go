package payrelay

import "fmt"

// TokenConfig describes a token on a specific network.
type TokenConfig struct {
	// Address is the token contract address.
	Address string

	// Symbol is the token symbol (e.g., "USDC").
	Symbol string

	// Name is the human-readable token name.
	Name string

	// Decimals is the number of decimal places for the token.
	Decimals int

	// Native marks the chain's native currency pseudo-token.
	Native bool

	// EIP712Name and EIP712Version are the EIP-712 domain parameters declared
	// by the token contract. They must match the contract byte-for-byte: a
	// mismatch produces a signature the contract rejects at settlement, not a
	// client-detectable error.
	EIP712Name    string
	EIP712Version string
}

// NativeCurrency describes a network's gas currency.
type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals int
}

// NetworkConfig is a static descriptor for one supported network. The
// registry is loaded once at process start and never mutated; concurrent
// reads need no synchronization. All components resolve network-specific
// facts only through this registry so the signing domain and the settlement
// endpoint can never drift apart.
type NetworkConfig struct {
	// ID is the registry key ("mainnet" or "testnet").
	ID string

	// Name is the human-readable chain name.
	Name string

	// ChainID is the EIP-155 chain id.
	ChainID int64

	// NativeCurrency is the chain's gas currency metadata.
	NativeCurrency NativeCurrency

	// RPCEndpoints lists public JSON-RPC endpoints.
	RPCEndpoints []string

	// ExplorerURL is the block-explorer base URL, without trailing slash.
	ExplorerURL string

	// FacilitatorURL is the gas-paying settlement facilitator for this network.
	FacilitatorURL string

	// Stablecoin is the EIP-3009 stablecoin used for gasless payments.
	Stablecoin TokenConfig
}

// TxURL returns the block-explorer URL for a transaction hash.
func (n NetworkConfig) TxURL(txHash string) string {
	return n.ExplorerURL + "/tx/" + txHash
}

// Network identifiers.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// Predefined network configurations. USDC addresses and EIP-3009 domain
// parameters verified 2025-10-28 against the deployed contracts.
var (
	// Mainnet is Base mainnet.
	Mainnet = NetworkConfig{
		ID:             NetworkMainnet,
		Name:           "Base",
		ChainID:        8453,
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCEndpoints:   []string{"https://mainnet.base.org"},
		ExplorerURL:    "https://basescan.org",
		FacilitatorURL: "https://facilitator.payrelay.org",
		Stablecoin: TokenConfig{
			Address:       "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Symbol:        "USDC",
			Name:          "USD Coin",
			Decimals:      6,
			EIP712Name:    "USD Coin",
			EIP712Version: "2",
		},
	}

	// Testnet is Base Sepolia.
	Testnet = NetworkConfig{
		ID:             NetworkTestnet,
		Name:           "Base Sepolia",
		ChainID:        84532,
		NativeCurrency: NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		RPCEndpoints:   []string{"https://sepolia.base.org"},
		ExplorerURL:    "https://sepolia.basescan.org",
		FacilitatorURL: "https://facilitator-testnet.payrelay.org",
		Stablecoin: TokenConfig{
			Address:       "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Symbol:        "USDC",
			Name:          "USDC",
			Decimals:      6,
			EIP712Name:    "USDC",
			EIP712Version: "2",
		},
	}
)

var networkByID = map[string]NetworkConfig{
	NetworkMainnet: Mainnet,
	NetworkTestnet: Testnet,
}

// GetNetworkConfig returns the configuration for a network identifier.
func GetNetworkConfig(networkID string) (NetworkConfig, error) {
	config, ok := networkByID[networkID]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, networkID)
	}
	return config, nil
}

// Networks returns the identifiers of all configured networks.
func Networks() []string {
	return []string{NetworkMainnet, NetworkTestnet}
}
