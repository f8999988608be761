package storage

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/evote-tally/log"
)

// ArtifactEncoding defines the encoding formats for stored artifacts.
type ArtifactEncoding int

const (
	// ArtifactEncodingCBOR is the CBOR encoding format, used for everything
	// written to the database.
	ArtifactEncodingCBOR ArtifactEncoding = iota
	// ArtifactEncodingJSON is the JSON encoding format, used for published
	// copies of the artifacts.
	ArtifactEncodingJSON
)

// cborEncMode produces deterministic output so the same artifact always
// encodes to the same bytes. Times keep their nanoseconds.
var cborEncMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("invalid cbor encoding options: %v", err))
	}
	return em
}()

// EncodeArtifact encodes an artifact into the specified encoding format. If no
// format is specified, CBOR is used.
func EncodeArtifact(a any, encoding ...ArtifactEncoding) ([]byte, error) {
	if len(encoding) == 0 {
		return EncodeArtifactCBOR(a)
	}
	switch encoding[0] {
	case ArtifactEncodingCBOR:
		return EncodeArtifactCBOR(a)
	case ArtifactEncodingJSON:
		return EncodeArtifactJSON(a)
	default:
		return nil, fmt.Errorf("unknown artifact encoding: %d", encoding[0])
	}
}

// DecodeArtifact decodes an artifact from the specified format. If no format
// is specified, CBOR is used.
func DecodeArtifact(data []byte, out any, encoding ...ArtifactEncoding) error {
	if len(encoding) == 0 {
		return DecodeArtifactCBOR(data, out)
	}
	switch encoding[0] {
	case ArtifactEncodingCBOR:
		return DecodeArtifactCBOR(data, out)
	case ArtifactEncodingJSON:
		if err := DecodeArtifactJSON(data, out); err != nil {
			log.Warnw("falling back to CBOR decoding due to JSON decoding failure", "error", err)
			return DecodeArtifactCBOR(data, out)
		}
		return nil
	default:
		return fmt.Errorf("unknown artifact encoding: %d", encoding[0])
	}
}

// EncodeArtifactCBOR encodes an artifact into deterministic CBOR.
func EncodeArtifactCBOR(a any) ([]byte, error) {
	data, err := cborEncMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return data, nil
}

// DecodeArtifactCBOR decodes a CBOR-encoded artifact into out.
func DecodeArtifactCBOR(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

// EncodeArtifactJSON encodes an artifact into indented JSON.
func EncodeArtifactJSON(a any) ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// DecodeArtifactJSON decodes a JSON-encoded artifact into out.
func DecodeArtifactJSON(data []byte, out any) error {
	return json.Unmarshal(data, out)
}
