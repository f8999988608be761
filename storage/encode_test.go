package storage

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/evote-tally/tally"
)

type testEncodeData struct {
	Name   string
	When   time.Time
	Report *tally.Report
}

func TestEncodeDecodeArtifact(t *testing.T) {
	c := qt.New(t)
	artifact := testEncodeData{
		Name: "test",
		When: time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC),
		Report: &tally.Report{
			TotalBallotsProcessed: 3,
			DecryptionErrors:      1,
			PerCandidate:          []tally.CandidateResult{{CandidateID: 1, Name: "Alice", Votes: 2}},
			Message:               tally.MessageCompleted,
		},
	}

	for _, enc := range []ArtifactEncoding{ArtifactEncodingCBOR, ArtifactEncodingJSON} {
		encoded, err := EncodeArtifact(artifact, enc)
		c.Assert(err, qt.IsNil)
		var decoded testEncodeData
		c.Assert(DecodeArtifact(encoded, &decoded, enc), qt.IsNil)
		c.Assert(decoded.Name, qt.Equals, artifact.Name)
		c.Assert(decoded.When.Equal(artifact.When), qt.IsTrue, qt.Commentf("encoding %d", enc))
		c.Assert(decoded.Report, qt.DeepEquals, artifact.Report)
	}

	c.Run("default is cbor", func(c *qt.C) {
		def, err := EncodeArtifact(artifact)
		c.Assert(err, qt.IsNil)
		explicit, err := EncodeArtifactCBOR(artifact)
		c.Assert(err, qt.IsNil)
		c.Assert(def, qt.DeepEquals, explicit)
	})

	c.Run("deterministic", func(c *qt.C) {
		m := map[string]uint64{"b": 2, "a": 1, "c": 3}
		first, err := EncodeArtifact(m)
		c.Assert(err, qt.IsNil)
		for range 10 {
			again, err := EncodeArtifact(map[string]uint64{"c": 3, "a": 1, "b": 2})
			c.Assert(err, qt.IsNil)
			c.Assert(again, qt.DeepEquals, first)
		}
	})

	c.Run("invalid encoding", func(c *qt.C) {
		_, err := EncodeArtifact(artifact, ArtifactEncoding(100))
		c.Assert(err, qt.IsNotNil)
		var decoded testEncodeData
		c.Assert(DecodeArtifact([]byte{0xa0}, &decoded, ArtifactEncoding(100)), qt.IsNotNil)
	})
}
