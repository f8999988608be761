package config

import (
	"maps"
	"slices"
)

// NetworkConfig describes a ledger network the service can tally on.
type NetworkConfig struct {
	ChainID uint64
	RPC     []string
}

// DefaultNetwork is used when neither a network nor RPC endpoints are
// configured.
const DefaultNetwork = "localhost"

// Networks contains the known networks by short name.
var Networks = map[string]NetworkConfig{
	"localhost": {
		ChainID: 1337,
		RPC:     []string{"http://127.0.0.1:8545"},
	},
	"hardhat": {
		ChainID: 31337,
		RPC:     []string{"http://127.0.0.1:8545"},
	},
	"sep": {
		ChainID: 11155111,
		RPC: []string{
			"https://ethereum-sepolia-rpc.publicnode.com",
			"https://sepolia.drpc.org",
		},
	},
}

// AvailableNetworks returns the sorted list of known network names.
func AvailableNetworks() []string {
	return slices.Sorted(maps.Keys(Networks))
}

// Network returns the configuration of the named network.
func Network(name string) (NetworkConfig, bool) {
	n, ok := Networks[name]
	if !ok {
		return NetworkConfig{}, false
	}
	n.RPC = slices.Clone(n.RPC)
	return n, true
}
