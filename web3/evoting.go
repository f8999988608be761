package web3

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// EVotingABI is the read-only subset of the EVoting contract ABI.
const EVotingABI = `[
 {"inputs":[],"name":"getTotalVotes","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"_index","type":"uint256"}],"name":"getVote","outputs":[{"internalType":"address","name":"","type":"address"},{"internalType":"string","name":"","type":"string"},{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"_candidateId","type":"uint256"}],"name":"getCandidate","outputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"string","name":"","type":"string"},{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"getAllCandidates","outputs":[{"components":[{"internalType":"uint256","name":"id","type":"uint256"},{"internalType":"string","name":"name","type":"string"},{"internalType":"uint256","name":"voteCount","type":"uint256"}],"internalType":"struct EVoting.Candidate[]","name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"candidatesCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"getVotingStatus","outputs":[{"internalType":"bool","name":"","type":"bool"},{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// EVotingCandidate is the Solidity EVoting.Candidate struct.
type EVotingCandidate struct {
	Id        *big.Int
	Name      string
	VoteCount *big.Int
}

// EVotingVote is the tuple returned by getVote.
type EVotingVote struct {
	Voter         common.Address
	EncryptedVote string
	Timestamp     *big.Int
}

// EVotingStatus is the tuple returned by getVotingStatus.
type EVotingStatus struct {
	Active          bool
	CandidatesCount *big.Int
	VotesCount      *big.Int
}

// EVoting is a read-only binding to a deployed EVoting contract.
type EVoting struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewEVoting binds the contract at address to caller.
func NewEVoting(address common.Address, caller bind.ContractCaller) (*EVoting, error) {
	parsed, err := abi.JSON(strings.NewReader(EVotingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse EVoting ABI: %w", err)
	}
	return &EVoting{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, caller, nil, nil),
	}, nil
}

// Address returns the contract address.
func (e *EVoting) Address() common.Address {
	return e.address
}

// GetTotalVotes is a free data retrieval call binding the contract method getTotalVotes.
func (e *EVoting) GetTotalVotes(opts *bind.CallOpts) (*big.Int, error) {
	var out []any
	if err := e.contract.Call(opts, &out, "getTotalVotes"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// CandidatesCount is a free data retrieval call binding the contract method candidatesCount.
func (e *EVoting) CandidatesCount(opts *bind.CallOpts) (*big.Int, error) {
	var out []any
	if err := e.contract.Call(opts, &out, "candidatesCount"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetVote is a free data retrieval call binding the contract method getVote.
func (e *EVoting) GetVote(opts *bind.CallOpts, index *big.Int) (*EVotingVote, error) {
	var out []any
	if err := e.contract.Call(opts, &out, "getVote", index); err != nil {
		return nil, err
	}
	return &EVotingVote{
		Voter:         *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		EncryptedVote: *abi.ConvertType(out[1], new(string)).(*string),
		Timestamp:     *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
	}, nil
}

// GetCandidate is a free data retrieval call binding the contract method getCandidate.
func (e *EVoting) GetCandidate(opts *bind.CallOpts, id *big.Int) (*EVotingCandidate, error) {
	var out []any
	if err := e.contract.Call(opts, &out, "getCandidate", id); err != nil {
		return nil, err
	}
	return &EVotingCandidate{
		Id:        *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Name:      *abi.ConvertType(out[1], new(string)).(*string),
		VoteCount: *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
	}, nil
}

// GetAllCandidates is a free data retrieval call binding the contract method getAllCandidates.
func (e *EVoting) GetAllCandidates(opts *bind.CallOpts) ([]EVotingCandidate, error) {
	var out []any
	if err := e.contract.Call(opts, &out, "getAllCandidates"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]EVotingCandidate)).(*[]EVotingCandidate), nil
}

// GetVotingStatus is a free data retrieval call binding the contract method getVotingStatus.
func (e *EVoting) GetVotingStatus(opts *bind.CallOpts) (*EVotingStatus, error) {
	var out []any
	if err := e.contract.Call(opts, &out, "getVotingStatus"); err != nil {
		return nil, err
	}
	return &EVotingStatus{
		Active:          *abi.ConvertType(out[0], new(bool)).(*bool),
		CandidatesCount: *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		VotesCount:      *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
	}, nil
}
