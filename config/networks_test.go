package config

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestNetworks(t *testing.T) {
	c := qt.New(t)
	c.Assert(AvailableNetworks(), qt.DeepEquals, []string{"hardhat", "localhost", "sep"})

	n, ok := Network(DefaultNetwork)
	c.Assert(ok, qt.IsTrue)
	c.Assert(n.ChainID, qt.Equals, uint64(1337))
	n.RPC[0] = "changed"
	again, _ := Network(DefaultNetwork)
	c.Assert(again.RPC[0], qt.Equals, "http://127.0.0.1:8545")

	_, ok = Network("mainnet")
	c.Assert(ok, qt.IsFalse)
}
