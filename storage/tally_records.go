package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/vocdoni/evote-tally/log"
	"github.com/vocdoni/evote-tally/tally"
	"github.com/vocdoni/evote-tally/types"
)

// TallyRecord is the stored outcome of one completed tally run.
type TallyRecord struct {
	ID         string         `json:"runId" cbor:"1,keyasint"`
	StartedAt  time.Time      `json:"startedAt" cbor:"2,keyasint"`
	FinishedAt time.Time      `json:"finishedAt" cbor:"3,keyasint"`
	Contract   common.Address `json:"contractAddress" cbor:"4,keyasint"`
	ChainID    uint64         `json:"chainId" cbor:"5,keyasint"`
	Report     *tally.Report  `json:"report" cbor:"6,keyasint"`
	Digest     types.HexBytes `json:"digest" cbor:"7,keyasint"`
}

// TallyRecordSummary is the listing view of a TallyRecord.
type TallyRecordSummary struct {
	ID                    string         `json:"runId"`
	StartedAt             time.Time      `json:"startedAt"`
	FinishedAt            time.Time      `json:"finishedAt"`
	TotalBallotsProcessed uint64         `json:"totalVotesProcessed"`
	DecryptionErrors      uint64         `json:"decryptionErrors"`
	Digest                types.HexBytes `json:"digest"`
}

// NewRunID returns a new time ordered run identifier.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source does.
		return uuid.NewString()
	}
	return id.String()
}

// NewTallyRecord builds the record of a run that started at startedAt and
// produced report. The id is left empty when runID is empty, so that
// PushTallyRecord assigns one.
func NewTallyRecord(runID string, startedAt time.Time, contract common.Address,
	chainID uint64, report *tally.Report,
) (*TallyRecord, error) {
	if report == nil {
		return nil, fmt.Errorf("nil report")
	}
	digest, err := ReportDigest(report)
	if err != nil {
		return nil, err
	}
	return &TallyRecord{
		ID:         runID,
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Contract:   contract,
		ChainID:    chainID,
		Report:     report,
		Digest:     digest,
	}, nil
}

// ReportDigest returns the SHA3-256 of the deterministic CBOR encoding of
// the report.
func ReportDigest(report *tally.Report) (types.HexBytes, error) {
	data, err := EncodeArtifactCBOR(report)
	if err != nil {
		return nil, fmt.Errorf("digest report: %w", err)
	}
	sum := sha3.Sum256(data)
	return sum[:], nil
}

// Summary returns the listing view of the record.
func (r *TallyRecord) Summary() TallyRecordSummary {
	s := TallyRecordSummary{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Digest:     r.Digest,
	}
	if r.Report != nil {
		s.TotalBallotsProcessed = r.Report.TotalBallotsProcessed
		s.DecryptionErrors = r.Report.DecryptionErrors
	}
	return s
}

// VerifyDigest reports whether the stored digest matches the report.
func (r *TallyRecord) VerifyDigest() bool {
	if r.Report == nil {
		return false
	}
	digest, err := ReportDigest(r.Report)
	if err != nil {
		return false
	}
	return digest.Equal(r.Digest)
}

// PushTallyRecord stores the record and marks it as the latest one. A record
// without id gets a new one. Records are immutable: pushing an id that is
// already stored returns ErrKeyAlreadyExists.
func (s *Storage) PushTallyRecord(rec *TallyRecord) error {
	if rec == nil || rec.Report == nil {
		return fmt.Errorf("invalid tally record")
	}
	if rec.ID == "" {
		rec.ID = NewRunID()
	}
	if len(rec.Digest) == 0 {
		digest, err := ReportDigest(rec.Report)
		if err != nil {
			return err
		}
		rec.Digest = digest
	}

	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.setArtifact(tallyRecordPrefix, []byte(rec.ID), rec, false); err != nil {
		return fmt.Errorf("store tally record %s: %w", rec.ID, err)
	}
	if err := s.setArtifact(latestTallyPrefix, latestTallyKey, rec.ID, true); err != nil {
		return fmt.Errorf("store latest tally id: %w", err)
	}
	s.cache.Add(rec.ID, rec)
	log.Debugw("tally record stored", "runId", rec.ID, "digest", rec.Digest.String())
	return nil
}

// TallyRecord returns the record stored under the run id, or ErrNotFound.
func (s *Storage) TallyRecord(id string) (*TallyRecord, error) {
	if rec, ok := s.cache.Get(id); ok {
		return rec, nil
	}
	rec := &TallyRecord{}
	if err := s.getArtifact(tallyRecordPrefix, []byte(id), rec); err != nil {
		return nil, err
	}
	s.cache.Add(id, rec)
	return rec, nil
}

// LatestTallyRecord returns the most recently stored record, or ErrNotFound
// if no run has completed yet.
func (s *Storage) LatestTallyRecord() (*TallyRecord, error) {
	var id string
	if err := s.getArtifact(latestTallyPrefix, latestTallyKey, &id); err != nil {
		return nil, err
	}
	return s.TallyRecord(id)
}

// TallyRecords returns every stored record, newest first.
func (s *Storage) TallyRecords() ([]*TallyRecord, error) {
	keys, err := s.listArtifacts(tallyRecordPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tally records: %w", err)
	}
	records := make([]*TallyRecord, 0, len(keys))
	for _, k := range slices.Backward(keys) {
		rec, err := s.TallyRecord(string(k))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
