package rpc

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/vocdoni/evote-tally/log"
)

// dialTimeout bounds the connection and chain id lookup of a new endpoint.
const dialTimeout = 5 * time.Second

// Web3Pool groups the known web3 endpoints by chain id.
type Web3Pool struct {
	endpoints map[uint64]*Web3Iterator
	mtx       sync.RWMutex
}

// NewWeb3Pool returns an empty pool.
func NewWeb3Pool() *Web3Pool {
	return &Web3Pool{endpoints: make(map[uint64]*Web3Iterator)}
}

// AddEndpoint dials uri, resolves its chain id and registers it. It returns
// the chain id served by the endpoint.
func (w3p *Web3Pool) AddEndpoint(uri string) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	rpcClient, err := gethrpc.DialContext(ctx, uri)
	if err != nil {
		return 0, fmt.Errorf("error dialing web3 endpoint %s: %w", uri, err)
	}
	client := ethclient.NewClient(rpcClient)
	bChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return 0, fmt.Errorf("error getting chainID from %s: %w", uri, err)
	}
	chainID := bChainID.Uint64()
	endpoint := &Web3Endpoint{
		ChainID:   chainID,
		URI:       uri,
		client:    client,
		rpcClient: rpcClient,
	}

	w3p.mtx.Lock()
	defer w3p.mtx.Unlock()
	if iter, ok := w3p.endpoints[chainID]; ok {
		iter.Add(endpoint)
	} else {
		w3p.endpoints[chainID] = NewWeb3Iterator(endpoint)
	}
	log.Debugw("web3 endpoint added", "uri", uri, "chainID", chainID)
	return chainID, nil
}

// Endpoint returns the next endpoint for chainID in round robin order.
func (w3p *Web3Pool) Endpoint(chainID uint64) (*Web3Endpoint, error) {
	w3p.mtx.RLock()
	iter, ok := w3p.endpoints[chainID]
	w3p.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no endpoints for chainID %d", chainID)
	}
	return iter.Next()
}

// DisableEndpoint puts the endpoint uri of chainID on cooldown.
func (w3p *Web3Pool) DisableEndpoint(chainID uint64, uri string) {
	w3p.mtx.RLock()
	iter, ok := w3p.endpoints[chainID]
	w3p.mtx.RUnlock()
	if !ok {
		return
	}
	iter.Disable(uri)
}

// NumberOfEndpoints returns the endpoints registered for chainID, only the
// available ones if onlyAvailable is set.
func (w3p *Web3Pool) NumberOfEndpoints(chainID uint64, onlyAvailable bool) int {
	w3p.mtx.RLock()
	iter, ok := w3p.endpoints[chainID]
	w3p.mtx.RUnlock()
	if !ok {
		return 0
	}
	if onlyAvailable {
		return iter.Available()
	}
	return iter.Available() + iter.Disabled()
}

// URIs returns the sorted endpoint URIs registered for chainID.
func (w3p *Web3Pool) URIs(chainID uint64) []string {
	w3p.mtx.RLock()
	iter, ok := w3p.endpoints[chainID]
	w3p.mtx.RUnlock()
	if !ok {
		return nil
	}
	uris := iter.URIs()
	slices.Sort(uris)
	return uris
}

// Client returns a load balanced client for chainID.
func (w3p *Web3Pool) Client(chainID uint64) (*Client, error) {
	if w3p.NumberOfEndpoints(chainID, false) == 0 {
		return nil, fmt.Errorf("no endpoints for chainID %d", chainID)
	}
	return &Client{w3p: w3p, chainID: chainID}, nil
}

// Close closes every endpoint connection.
func (w3p *Web3Pool) Close() {
	w3p.mtx.Lock()
	defer w3p.mtx.Unlock()
	for _, iter := range w3p.endpoints {
		iter.close()
	}
	w3p.endpoints = make(map[uint64]*Web3Iterator)
}
