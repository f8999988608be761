package authority

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func writeKey(c *qt.C, data []byte) string {
	path := filepath.Join(c.TempDir(), "authority_private_key.pem")
	c.Assert(os.WriteFile(path, data, 0o600), qt.IsNil)
	return path
}

func TestLoadPrivateKeyFormats(t *testing.T) {
	c := qt.New(t)
	priv, err := GenerateKey(DefaultKeyBits)
	c.Assert(err, qt.IsNil)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	pkcs8Plain, err := MarshalPrivateKeyPEM(priv, nil)
	c.Assert(err, qt.IsNil)
	pkcs8Enc, err := MarshalPrivateKeyPEM(priv, []byte("s3cret"))
	c.Assert(err, qt.IsNil)

	for name, tc := range map[string]struct {
		data     []byte
		password string
	}{
		"pkcs1":           {pkcs1, ""},
		"pkcs8":           {pkcs8Plain, ""},
		"pkcs8 encrypted": {pkcs8Enc, "s3cret"},
	} {
		c.Run(name, func(c *qt.C) {
			loader := &FileKeyLoader{Path: writeKey(c, tc.data), Password: tc.password}
			km, err := loader.LoadPrivateKey()
			c.Assert(err, qt.IsNil)
			c.Assert(km.Public().Equal(&priv.PublicKey), qt.IsTrue)
			c.Assert(km.Size(), qt.Equals, 256)
		})
	}
}

func TestLoadPrivateKeyFailures(t *testing.T) {
	c := qt.New(t)
	priv, err := GenerateKey(DefaultKeyBits)
	c.Assert(err, qt.IsNil)
	encrypted, err := MarshalPrivateKeyPEM(priv, []byte("right"))
	c.Assert(err, qt.IsNil)
	pub, err := MarshalPublicKeyPEM(&priv.PublicKey)
	c.Assert(err, qt.IsNil)

	cases := map[string]*FileKeyLoader{
		"missing file":   {Path: filepath.Join(c.TempDir(), "nope.pem")},
		"empty path":     {},
		"not pem":        {Path: writeKey(c, []byte("hello"))},
		"public key":     {Path: writeKey(c, pub)},
		"no password":    {Path: writeKey(c, encrypted)},
		"wrong password": {Path: writeKey(c, encrypted), Password: "wrong"},
	}
	for name, loader := range cases {
		c.Run(name, func(c *qt.C) {
			km, err := loader.LoadPrivateKey()
			c.Assert(km, qt.IsNil)
			c.Assert(errors.Is(err, ErrKeyUnavailable), qt.IsTrue, qt.Commentf("got %v", err))
			var kerr *KeyLoadError
			c.Assert(errors.As(err, &kerr), qt.IsTrue)
			c.Assert(kerr.Path, qt.Equals, loader.Path)
		})
	}

	c.Run("missing file keeps cause", func(c *qt.C) {
		_, err := (&FileKeyLoader{Path: filepath.Join(c.TempDir(), "nope.pem")}).LoadPrivateKey()
		c.Assert(errors.Is(err, os.ErrNotExist), qt.IsTrue)
	})
}

func TestDecryptRoundTrip(t *testing.T) {
	c := qt.New(t)
	priv, err := GenerateKey(DefaultKeyBits)
	c.Assert(err, qt.IsNil)
	km, err := NewKeyMaterial(priv)
	c.Assert(err, qt.IsNil)

	for _, id := range []uint64{0, 1, 7, 20, 1 << 40} {
		encoded, err := EncryptChoice(km.Public(), id)
		c.Assert(err, qt.IsNil)
		ct, err := base64.StdEncoding.DecodeString(encoded)
		c.Assert(err, qt.IsNil)
		c.Assert(len(ct), qt.Equals, km.Size())
		pt, err := km.Decrypt(ct)
		c.Assert(err, qt.IsNil)
		c.Assert(string(pt), qt.Equals, fmt.Sprint(id))
	}
}

func TestDecryptWrongKey(t *testing.T) {
	c := qt.New(t)
	a, err := GenerateKey(DefaultKeyBits)
	c.Assert(err, qt.IsNil)
	b, err := GenerateKey(DefaultKeyBits)
	c.Assert(err, qt.IsNil)
	kmB, err := NewKeyMaterial(b)
	c.Assert(err, qt.IsNil)

	encoded, err := EncryptChoice(&a.PublicKey, 3)
	c.Assert(err, qt.IsNil)
	ct, _ := base64.StdEncoding.DecodeString(encoded)
	_, err = kmB.Decrypt(ct)
	c.Assert(err, qt.Equals, ErrDecryption)

	_, err = kmB.Decrypt([]byte("short"))
	c.Assert(err, qt.Equals, ErrDecryption)
}

func TestKeyMaterialRedacted(t *testing.T) {
	c := qt.New(t)
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	c.Assert(err, qt.IsNil)
	km, err := NewKeyMaterial(priv)
	c.Assert(err, qt.IsNil)

	d := priv.D.String()
	c.Assert(fmt.Sprint(km), qt.Not(qt.Contains), d)
	c.Assert(fmt.Sprintf("%+v", km), qt.Not(qt.Contains), d)
	c.Assert(fmt.Sprintf("%#v", km), qt.Equals, "authority.KeyMaterial{redacted}")
	data, err := json.Marshal(struct{ Key *KeyMaterial }{km})
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `{"Key":"redacted"}`)
}

func TestPublicKeyPEM(t *testing.T) {
	c := qt.New(t)
	priv, err := GenerateKey(DefaultKeyBits)
	c.Assert(err, qt.IsNil)
	data, err := MarshalPublicKeyPEM(&priv.PublicKey)
	c.Assert(err, qt.IsNil)
	pub, err := ParsePublicKeyPEM(data)
	c.Assert(err, qt.IsNil)
	c.Assert(pub.Equal(&priv.PublicKey), qt.IsTrue)

	_, err = GenerateKey(1024)
	c.Assert(err, qt.IsNotNil)
}
