package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Ballot is an encrypted vote as stored by the EVoting contract. Ciphertext
// holds the transport encoded (base64) RSA-OAEP ciphertext exactly as the
// voter client submitted it. Ballots are owned by the ledger and never
// modified by this service.
type Ballot struct {
	Index      uint64         `json:"index"`
	Voter      common.Address `json:"voter"`
	Ciphertext string         `json:"ciphertext"`
	Timestamp  uint64         `json:"timestamp"`
}

// BallotMetadata is the audit view of a ballot: everything but the
// ciphertext itself.
type BallotMetadata struct {
	Index               uint64         `json:"index"`
	Voter               common.Address `json:"voter"`
	Timestamp           uint64         `json:"timestamp"`
	EncryptedDataLength int            `json:"encryptedDataLength"`
}

// Metadata returns the audit view of the ballot.
func (b *Ballot) Metadata() BallotMetadata {
	return BallotMetadata{
		Index:               b.Index,
		Voter:               b.Voter,
		Timestamp:           b.Timestamp,
		EncryptedDataLength: len(b.Ciphertext),
	}
}

// VotingStatus is the summary exposed by the EVoting contract.
type VotingStatus struct {
	Active          bool   `json:"active"`
	CandidatesCount uint64 `json:"candidatesCount"`
	VotesCount      uint64 `json:"votesCount"`
}
