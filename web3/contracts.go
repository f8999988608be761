// Package web3 reads the EVoting contract through a pool of JSON-RPC
// endpoints and exposes it as the ledger consumed by the tally engine.
package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/types"
	"github.com/vocdoni/evote-tally/web3/rpc"
)

// web3QueryTimeout is the timeout for web3 queries issued outside of a
// caller provided context.
const web3QueryTimeout = 10 * time.Second

// Contracts is the EVoting ledger of one chain.
type Contracts struct {
	ChainID  uint64
	Address  common.Address
	web3pool *rpc.Web3Pool
	cli      *rpc.Client
	evoting  *EVoting
}

// New connects to the given endpoints, which must all serve the same chain,
// and binds the EVoting contract at address.
func New(web3rpcs []string, address common.Address) (*Contracts, error) {
	if len(web3rpcs) == 0 {
		return nil, fmt.Errorf("no web3 endpoints provided")
	}
	w3pool := rpc.NewWeb3Pool()
	var chainID *uint64
	for _, uri := range web3rpcs {
		cID, err := w3pool.AddEndpoint(uri)
		if err != nil {
			log.Warnw("skipping web3 endpoint", "rpc", uri, "error", err.Error())
			continue
		}
		if chainID == nil {
			chainID = &cID
		}
		if *chainID != cID {
			w3pool.Close()
			return nil, fmt.Errorf("web3 endpoints have different chain IDs: %d and %d", *chainID, cID)
		}
	}
	if chainID == nil {
		return nil, fmt.Errorf("%w: none of the %d web3 endpoints answered", types.ErrLedgerUnavailable, len(web3rpcs))
	}
	cli, err := w3pool.Client(*chainID)
	if err != nil {
		w3pool.Close()
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	c, err := NewWithCaller(*chainID, address, cli)
	if err != nil {
		w3pool.Close()
		return nil, err
	}
	c.web3pool = w3pool
	c.cli = cli

	ctx, cancel := context.WithTimeout(context.Background(), web3QueryTimeout)
	defer cancel()
	code, err := cli.CodeAt(ctx, address, nil)
	if err != nil {
		log.Warnw("cannot check EVoting contract code", "address", address.Hex(), "error", err.Error())
	} else if len(code) == 0 {
		log.Warnw("no contract code found at EVoting address", "address", address.Hex())
	}
	log.Infow("web3 client initialized",
		"chainID", *chainID,
		"contract", address.Hex(),
		"numEndpoints", w3pool.NumberOfEndpoints(*chainID, false))
	return c, nil
}

// NewWithCaller binds the EVoting contract at address to an arbitrary
// caller, such as a simulated backend.
func NewWithCaller(chainID uint64, address common.Address, caller bind.ContractCaller) (*Contracts, error) {
	evoting, err := NewEVoting(address, caller)
	if err != nil {
		return nil, err
	}
	return &Contracts{
		ChainID: chainID,
		Address: address,
		evoting: evoting,
	}, nil
}

// Providers returns the configured RPC endpoint URIs.
func (c *Contracts) Providers() []string {
	if c.web3pool == nil {
		return nil
	}
	return c.web3pool.URIs(c.ChainID)
}

// NetworkID returns the chain id the endpoints were resolved for.
func (c *Contracts) NetworkID() uint64 {
	return c.ChainID
}

// Connected reports whether at least one endpoint answers, together with
// the latest block number.
func (c *Contracts) Connected(ctx context.Context) (bool, uint64) {
	if c.cli == nil {
		return false, 0
	}
	block, err := c.cli.BlockNumber(ctx)
	if err != nil {
		log.Debugw("web3 health check failed", "error", err.Error())
		return false, 0
	}
	return true, block
}

// Close releases the endpoint connections.
func (c *Contracts) Close() {
	if c.web3pool != nil {
		c.web3pool.Close()
	}
}

// TotalVotes returns the number of ballots stored by the contract.
func (c *Contracts) TotalVotes(ctx context.Context) (uint64, error) {
	total, err := c.evoting.GetTotalVotes(&bind.CallOpts{Context: ctx})
	if err != nil {
		return 0, ledgerError("getTotalVotes", err)
	}
	return toUint64("total votes", total)
}

// Vote returns the ballot at index.
func (c *Contracts) Vote(ctx context.Context, index uint64) (*types.Ballot, error) {
	v, err := c.evoting.GetVote(&bind.CallOpts{Context: ctx}, new(big.Int).SetUint64(index))
	if err != nil {
		return nil, ledgerError(fmt.Sprintf("getVote(%d)", index), err)
	}
	ts, err := toUint64("vote timestamp", v.Timestamp)
	if err != nil {
		return nil, err
	}
	return &types.Ballot{
		Index:      index,
		Voter:      v.Voter,
		Ciphertext: v.EncryptedVote,
		Timestamp:  ts,
	}, nil
}

// CandidatesCount returns the number of registered candidates.
func (c *Contracts) CandidatesCount(ctx context.Context) (uint64, error) {
	count, err := c.evoting.CandidatesCount(&bind.CallOpts{Context: ctx})
	if err != nil {
		return 0, ledgerError("candidatesCount", err)
	}
	return toUint64("candidates count", count)
}

// Candidate returns the registry entry of id.
func (c *Contracts) Candidate(ctx context.Context, id uint64) (*types.Candidate, error) {
	cand, err := c.evoting.GetCandidate(&bind.CallOpts{Context: ctx}, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, ledgerError(fmt.Sprintf("getCandidate(%d)", id), err)
	}
	return candidateFromContract(cand)
}

// AllCandidates returns the whole registry as stored by the contract.
func (c *Contracts) AllCandidates(ctx context.Context) ([]types.Candidate, error) {
	list, err := c.evoting.GetAllCandidates(&bind.CallOpts{Context: ctx})
	if err != nil {
		return nil, ledgerError("getAllCandidates", err)
	}
	candidates := make([]types.Candidate, 0, len(list))
	for i := range list {
		cand, err := candidateFromContract(&list[i])
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *cand)
	}
	return candidates, nil
}

// VotingStatus returns whether voting is open and the contract counters.
func (c *Contracts) VotingStatus(ctx context.Context) (*types.VotingStatus, error) {
	st, err := c.evoting.GetVotingStatus(&bind.CallOpts{Context: ctx})
	if err != nil {
		return nil, ledgerError("getVotingStatus", err)
	}
	candidates, err := toUint64("candidates count", st.CandidatesCount)
	if err != nil {
		return nil, err
	}
	votes, err := toUint64("votes count", st.VotesCount)
	if err != nil {
		return nil, err
	}
	return &types.VotingStatus{
		Active:          st.Active,
		CandidatesCount: candidates,
		VotesCount:      votes,
	}, nil
}

func candidateFromContract(cand *EVotingCandidate) (*types.Candidate, error) {
	id, err := toUint64("candidate id", cand.Id)
	if err != nil {
		return nil, err
	}
	votes, err := toUint64("candidate vote count", cand.VoteCount)
	if err != nil {
		return nil, err
	}
	return &types.Candidate{ID: id, Name: cand.Name, RegisteredVoteCount: votes}, nil
}

// ledgerError classifies a failed contract call. Exhausted endpoints and
// refused connections mean the ledger is gone, anything else only affects
// the current read. Context errors are returned untouched.
func ledgerError(method string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, rpc.ErrEndpointsExhausted):
		return err
	case errors.Is(err, rpc.ErrEndpointsExhausted), errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %s: %w", types.ErrLedgerUnavailable, method, err)
	default:
		return fmt.Errorf("%w: %s: %w", types.ErrLedgerRead, method, err)
	}
}

// toUint64 converts a contract uint256 into uint64, rejecting values that
// do not fit.
func toUint64(what string, b *big.Int) (uint64, error) {
	if b == nil {
		return 0, fmt.Errorf("%w: %s missing", types.ErrLedgerRead, what)
	}
	u, overflow := uint256.FromBig(b)
	if overflow || !u.IsUint64() {
		return 0, fmt.Errorf("%w: %s %s overflows uint64", types.ErrLedgerRead, what, b.String())
	}
	return u.Uint64(), nil
}
