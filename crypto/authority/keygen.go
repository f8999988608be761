package authority

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strconv"

	"github.com/youmark/pkcs8"
)

// DefaultKeyBits is the modulus size used by GenerateKey callers that do
// not choose one.
const DefaultKeyBits = 2048

// GenerateKey creates a new authority key pair.
func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("key size %d too small, minimum is 2048", bits)
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// MarshalPrivateKeyPEM encodes the key as PKCS#8 PEM. With a non empty
// password the key is encrypted (PBES2, AES-256-CBC) and the block type is
// ENCRYPTED PRIVATE KEY.
func MarshalPrivateKeyPEM(priv *rsa.PrivateKey, password []byte) ([]byte, error) {
	if len(password) == 0 {
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
	}
	der, err := pkcs8.MarshalPrivateKey(priv, password, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot encrypt key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKeyPEM encodes the public key as a PKIX PEM block, the format
// expected by the voter client.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM parses a PKIX or PKCS#1 RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return pub, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// EncryptChoice encrypts a candidate id the way the voter client does: the
// decimal id is OAEP encrypted and the ciphertext base64 encoded.
func EncryptChoice(pub *rsa.PublicKey, candidateID uint64) (string, error) {
	return EncryptPlaintext(pub, []byte(strconv.FormatUint(candidateID, 10)))
}

// EncryptPlaintext encrypts arbitrary plaintext with the ballot parameters
// and returns it base64 encoded.
func EncryptPlaintext(pub *rsa.PublicKey, plaintext []byte) (string, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}
