package types

import "math/big"

// Network is a canonical, supported blockchain network. External identifiers
// (legacy short names and CAIP-2 URNs) resolve to one of these values.
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia"

	NetworkSolana       Network = "solana"
	NetworkSolanaDevnet Network = "solana-devnet"
)

// ChainFamily distinguishes the two ledger models the facilitator supports.
type ChainFamily string

const (
	// FamilyEVM is the account/signature model: off-chain-signed
	// authorizations redeemed by the facilitator as relayer.
	FamilyEVM ChainFamily = "evm"

	// FamilySVM is the transaction-submission model: the client supplies a
	// ready-to-broadcast signed transaction.
	FamilySVM ChainFamily = "svm"
)

const (
	caip2EVMPrefix = "eip155:"
	caip2SVMPrefix = "solana:"
)

// caip2Networks maps CAIP-2 URNs to canonical networks. The SVM references
// are the first 32 characters of each cluster's genesis hash, per CAIP-30.
var caip2Networks = map[string]Network{
	"eip155:8453":                            NetworkBase,
	"eip155:84532":                           NetworkBaseSepolia,
	"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp": NetworkSolana,
	"solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1": NetworkSolanaDevnet,
}

// evmChainIDs binds each EVM network to its chain id, used both for EIP-712
// domain separation and transaction signing.
var evmChainIDs = map[Network]int64{
	NetworkBase:        8453,
	NetworkBaseSepolia: 84532,
}

// ResolveNetwork maps an external network identifier to its canonical form.
// It is total over the supported vocabulary and returns ok=false, never a
// fault, for anything else (including malformed but plausible strings).
func ResolveNetwork(id string) (Network, bool) {
	switch Network(id) {
	case NetworkBase, NetworkBaseSepolia, NetworkSolana, NetworkSolanaDevnet:
		return Network(id), true
	}
	if n, ok := caip2Networks[id]; ok {
		return n, true
	}
	return "", false
}

// Family reports which ledger model handles this network.
func (n Network) Family() ChainFamily {
	if n.IsEVM() {
		return FamilyEVM
	}
	return FamilySVM
}

// IsEVM reports whether the network uses the account-authorization model.
func (n Network) IsEVM() bool {
	return n == NetworkBase || n == NetworkBaseSepolia
}

// IsSVM reports whether the network uses the signed-transaction model.
func (n Network) IsSVM() bool {
	return n == NetworkSolana || n == NetworkSolanaDevnet
}

// IsTestnet reports whether the network is a test environment.
func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia || n == NetworkSolanaDevnet
}

// ChainID returns the EVM chain id for the network; ok is false for non-EVM
// networks.
func (n Network) ChainID() (*big.Int, bool) {
	id, ok := evmChainIDs[n]
	if !ok {
		return nil, false
	}
	return big.NewInt(id), true
}

// CAIP2 returns the CAIP-2 URN form of the network.
func (n Network) CAIP2() string {
	for urn, network := range caip2Networks {
		if network == n {
			return urn
		}
	}
	return string(n)
}

func (n Network) String() string {
	return string(n)
}

// SupportedNetworks lists every canonical network, EVM first.
func SupportedNetworks() []Network {
	return []Network{NetworkBase, NetworkBaseSepolia, NetworkSolana, NetworkSolanaDevnet}
}
