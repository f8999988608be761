// Package testutil provides deterministic fixtures shared by the package
// tests: addresses, authority keys and an in-memory EVoting ledger.
package testutil

import (
	"crypto/rsa"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vocdoni/evote-tally/crypto/authority"
)

// SampleCandidateNames is the candidate list registered by the EVoting
// deployment script.
var SampleCandidateNames = []string{
	"Alice Johnson", "Bob Smith", "Carol Davis", "David Wilson", "Eva Brown",
	"Frank Miller", "Grace Lee", "Henry Taylor", "Ivy Chen", "Jack Anderson",
	"Kate Thompson", "Liam Garcia", "Maya Patel", "Noah Rodriguez", "Olivia Martinez",
	"Paul Kim", "Quinn Murphy", "Ruby Zhang", "Sam Wilson", "Tina Lopez",
}

func DeterministicAddress(n uint64) common.Address {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)

	prefix := []byte("deterministic-address:")
	h := crypto.Keccak256(append(prefix, b[:]...))
	return common.BytesToAddress(h[12:])
}

func RandomAddress() common.Address {
	return DeterministicAddress(rand.Uint64())
}

var (
	authorityKeyOnce sync.Once
	authorityKey     *rsa.PrivateKey
)

// AuthorityKey returns a 2048 bit key generated once per test binary, key
// generation being the slowest part of most tests.
func AuthorityKey() *rsa.PrivateKey {
	authorityKeyOnce.Do(func() {
		var err error
		authorityKey, err = authority.GenerateKey(authority.DefaultKeyBits)
		if err != nil {
			panic(fmt.Sprintf("generate authority key: %v", err))
		}
	})
	return authorityKey
}

// AuthorityKeyMaterial wraps AuthorityKey.
func AuthorityKeyMaterial() *authority.KeyMaterial {
	km, err := authority.NewKeyMaterial(AuthorityKey())
	if err != nil {
		panic(err)
	}
	return km
}

// WriteAuthorityKey stores AuthorityKey as unencrypted PKCS#8 PEM in a
// temporary directory and returns the path.
func WriteAuthorityKey(t testing.TB) string {
	t.Helper()
	data, err := authority.MarshalPrivateKeyPEM(AuthorityKey(), nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "authority_private_key.pem")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// EncryptChoice encrypts a candidate id for AuthorityKey.
func EncryptChoice(id uint64) string {
	ct, err := authority.EncryptChoice(&AuthorityKey().PublicKey, id)
	if err != nil {
		panic(err)
	}
	return ct
}

// EncryptPlaintext encrypts raw plaintext for AuthorityKey.
func EncryptPlaintext(plaintext string) string {
	ct, err := authority.EncryptPlaintext(&AuthorityKey().PublicKey, []byte(plaintext))
	if err != nil {
		panic(err)
	}
	return ct
}

// StaticKeyLoader always returns the same key material, or Err if set.
type StaticKeyLoader struct {
	Key *authority.KeyMaterial
	Err error
}

func (l *StaticKeyLoader) LoadPrivateKey() (*authority.KeyMaterial, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Key, nil
}
