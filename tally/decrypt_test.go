package tally

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/evote-tally/crypto/authority"
	"github.com/vocdoni/evote-tally/internal/testutil"
)

func TestDecryptRoundTrip(t *testing.T) {
	c := qt.New(t)
	key := testutil.AuthorityKeyMaterial()
	for _, id := range []uint64{1, 2, 3, 20, 99, 123456789} {
		o := Decrypt(testutil.EncryptChoice(id), key)
		c.Assert(o.IsSelected(), qt.IsTrue, qt.Commentf("id %d: %v", id, o.Err()))
		c.Assert(o.CandidateID(), qt.Equals, int64(id))
	}
}

func TestDecryptPlaintextParsing(t *testing.T) {
	c := qt.New(t)
	key := testutil.AuthorityKeyMaterial()

	for plaintext, want := range map[string]int64{
		"7":    7,
		" 12\n": 12,
		"+3":   3,
		"-4":   -4,
		"0":    0,
	} {
		o := Decrypt(testutil.EncryptPlaintext(plaintext), key)
		c.Assert(o.IsSelected(), qt.IsTrue, qt.Commentf("plaintext %q", plaintext))
		c.Assert(o.CandidateID(), qt.Equals, want)
	}

	for _, plaintext := range []string{"99999999999999999999", "-99999999999999999999", " 123456789012345678901234567890 "} {
		o := Decrypt(testutil.EncryptPlaintext(plaintext), key)
		c.Assert(o.IsSelected(), qt.IsTrue, qt.Commentf("plaintext %q", plaintext))
		c.Assert(o.CandidateID(), qt.Equals, OutOfRangeID)
	}

	for _, plaintext := range []string{"", "abc", "1.5", "0x10", "1 2", "1e30", "\xff\xfe"} {
		o := Decrypt(testutil.EncryptPlaintext(plaintext), key)
		c.Assert(o.IsSelected(), qt.IsFalse, qt.Commentf("plaintext %q", plaintext))
		c.Assert(errors.Is(o.Err(), ErrParse), qt.IsTrue)
	}
}

func TestDecryptTransportEncoding(t *testing.T) {
	c := qt.New(t)
	key := testutil.AuthorityKeyMaterial()
	ct := testutil.EncryptChoice(2)

	// line breaks are ignored by the decoder, as in wrapped base64
	wrapped := ct[:40] + "\r\n" + ct[40:]
	o := Decrypt(" "+wrapped+"\n", key)
	c.Assert(o.IsSelected(), qt.IsTrue)
	c.Assert(o.CandidateID(), qt.Equals, int64(2))

	for name, junk := range map[string]string{
		"embedded space": ct[:40] + " " + ct[40:],
		"embedded junk":  ct[:40] + "*" + ct[40:],
		"url alphabet":   strings.NewReplacer("+", "-", "/", "_").Replace(ct),
		"unpadded":       strings.TrimRight(ct, "="),
	} {
		if junk == ct {
			continue
		}
		o := Decrypt(junk, key)
		c.Assert(errors.Is(o.Err(), ErrTransportDecode), qt.IsTrue, qt.Commentf("%s", name))
	}
}

func TestDecryptFailures(t *testing.T) {
	c := qt.New(t)
	key := testutil.AuthorityKeyMaterial()

	o := Decrypt("not base64 !!", key)
	c.Assert(errors.Is(o.Err(), ErrTransportDecode), qt.IsTrue)

	o = Decrypt(base64.StdEncoding.EncodeToString([]byte("garbage")), key)
	c.Assert(errors.Is(o.Err(), ErrCipher), qt.IsTrue)

	other, err := authority.GenerateKey(authority.DefaultKeyBits)
	c.Assert(err, qt.IsNil)
	ct, err := authority.EncryptChoice(&other.PublicKey, 1)
	c.Assert(err, qt.IsNil)
	o = Decrypt(ct, key)
	c.Assert(errors.Is(o.Err(), ErrCipher), qt.IsTrue)
	c.Assert(o.String(), qt.Equals, "failed")
}

func TestFailedNeverSelects(t *testing.T) {
	c := qt.New(t)
	o := Failed(nil)
	c.Assert(o.IsSelected(), qt.IsFalse)
	c.Assert(o.Err(), qt.Equals, ErrCipher)
	c.Assert(Selected(5).String(), qt.Equals, "selected(5)")
}
