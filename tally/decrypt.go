package tally

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vocdoni/evote-tally/crypto/authority"
)

// OutOfRangeID is the selection recorded for a base-10 plaintext that does
// not fit in an int64. Registry ids are positive, so it never matches a row
// and the ballot shows up in the reconciliation gap.
const OutOfRangeID int64 = math.MinInt64

// Outcome is the result of decrypting one ballot: either a selected
// candidate id or a failure.
type Outcome struct {
	candidateID int64
	err         error
}

// Selected builds a successful outcome.
func Selected(candidateID int64) Outcome {
	return Outcome{candidateID: candidateID}
}

// Failed builds a failed outcome. A nil error is replaced by ErrCipher so
// that a failure can never be mistaken for a selection.
func Failed(err error) Outcome {
	if err == nil {
		err = ErrCipher
	}
	return Outcome{err: err}
}

// IsSelected reports whether the ballot decrypted to a candidate id.
func (o Outcome) IsSelected() bool {
	return o.err == nil
}

// CandidateID returns the selected id, only meaningful when IsSelected.
func (o Outcome) CandidateID() int64 {
	return o.candidateID
}

// Err returns the failure cause, nil for selections.
func (o Outcome) Err() error {
	return o.err
}

func (o Outcome) String() string {
	if o.err != nil {
		return "failed"
	}
	return fmt.Sprintf("selected(%d)", o.candidateID)
}

// Decrypt turns a transport encoded ciphertext into an Outcome. It never
// returns the plaintext of a failed ballot.
func Decrypt(ciphertext string, key *authority.KeyMaterial) Outcome {
	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return Failed(ErrTransportDecode)
	}
	plaintext, err := key.Decrypt(ct)
	if err != nil {
		return Failed(ErrCipher)
	}
	id, err := parseCandidateID(plaintext)
	if err != nil {
		return Failed(err)
	}
	return Selected(id)
}

func parseCandidateID(plaintext []byte) (int64, error) {
	if !utf8.Valid(plaintext) {
		return 0, fmt.Errorf("%w: invalid utf-8", ErrParse)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(plaintext)), 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return OutOfRangeID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: not a base-10 integer", ErrParse)
	}
	return id, nil
}
