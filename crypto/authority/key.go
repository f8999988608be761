// Package authority holds the election authority RSA key used to decrypt
// ballots. Ballots are encrypted by voters with RSA-OAEP, SHA-256 as both the
// hash and the MGF1 hash, and no label.
package authority

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
)

// ErrKeyUnavailable is wrapped by every key loading failure.
var ErrKeyUnavailable = errors.New("authority key unavailable")

// ErrDecryption is returned by KeyMaterial.Decrypt. The underlying cause is
// dropped on purpose so that callers cannot tell padding failures apart.
var ErrDecryption = errors.New("decryption failed")

// KeyLoadError describes a failure to obtain the authority key from Path.
type KeyLoadError struct {
	Path string
	Err  error
}

func (e *KeyLoadError) Error() string {
	return fmt.Sprintf("cannot load authority key %q: %v", e.Path, e.Err)
}

// Unwrap returns both ErrKeyUnavailable and the root cause.
func (e *KeyLoadError) Unwrap() []error {
	return []error{ErrKeyUnavailable, e.Err}
}

// KeyMaterial wraps the authority private key. It is read-only once loaded
// and safe for concurrent use by any number of decrypt workers.
type KeyMaterial struct {
	priv *rsa.PrivateKey
}

// NewKeyMaterial wraps an already parsed private key.
func NewKeyMaterial(priv *rsa.PrivateKey) (*KeyMaterial, error) {
	if priv == nil {
		return nil, fmt.Errorf("nil private key")
	}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	priv.Precompute()
	return &KeyMaterial{priv: priv}, nil
}

// Decrypt performs RSA-OAEP decryption with SHA-256 and no label.
func (k *KeyMaterial) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.priv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// Public returns the public half of the key.
func (k *KeyMaterial) Public() *rsa.PublicKey {
	return &k.priv.PublicKey
}

// Size returns the modulus size in bytes, which is also the size of every
// valid ciphertext.
func (k *KeyMaterial) Size() int {
	return k.priv.Size()
}

func (k *KeyMaterial) String() string {
	return "authority.KeyMaterial{redacted}"
}

func (k *KeyMaterial) GoString() string {
	return k.String()
}

// MarshalJSON never exposes the key.
func (k *KeyMaterial) MarshalJSON() ([]byte, error) {
	return []byte(`"redacted"`), nil
}

// KeyLoader yields the authority key once per tally run.
type KeyLoader interface {
	LoadPrivateKey() (*KeyMaterial, error)
}

// FileKeyLoader loads a PEM encoded RSA key from disk. Password is only used
// for ENCRYPTED PRIVATE KEY (PKCS#8) blocks.
type FileKeyLoader struct {
	Path     string
	Password string
}

var _ KeyLoader = (*FileKeyLoader)(nil)

// LoadPrivateKey reads and parses the key file. Any failure is returned as a
// *KeyLoadError.
func (l *FileKeyLoader) LoadPrivateKey() (*KeyMaterial, error) {
	if l.Path == "" {
		return nil, &KeyLoadError{Path: l.Path, Err: fmt.Errorf("no key path configured")}
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, &KeyLoadError{Path: l.Path, Err: err}
	}
	priv, err := ParsePrivateKeyPEM(data, []byte(l.Password))
	if err != nil {
		return nil, &KeyLoadError{Path: l.Path, Err: err}
	}
	km, err := NewKeyMaterial(priv)
	if err != nil {
		return nil, &KeyLoadError{Path: l.Path, Err: err}
	}
	return km, nil
}

// ParsePrivateKeyPEM parses the first PEM block of data as an RSA private
// key. PKCS#1, PKCS#8 and encrypted PKCS#8 are supported.
func ParsePrivateKeyPEM(data, password []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return priv, nil
	case "ENCRYPTED PRIVATE KEY":
		if len(password) == 0 {
			return nil, fmt.Errorf("key is encrypted and no password was provided")
		}
		priv, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, password)
		if err != nil {
			return nil, fmt.Errorf("cannot decrypt key: %w", err)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}
