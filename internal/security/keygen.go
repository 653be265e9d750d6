package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	licerrors "allyinlic/internal/errors"
)

// GenerateRSAKeyPair creates a new RSA key pair for license signing.
// Key sizes below MinRSAKeyBits are rejected.
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < MinRSAKeyBits {
		return nil, licerrors.Configuration("RSA key size %d is below minimum %d", bits, MinRSAKeyBits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, licerrors.Cryptographic(err, "RSA key generation failed")
	}
	return key, nil
}

// SaveRSAKeyPair writes the private key (PKCS#8) and public key (PKIX) as
// PEM files. The private key file is created with owner-only permissions.
func SaveRSAKeyPair(key *rsa.PrivateKey, privatePath, publicPath string) error {
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return licerrors.Cryptographic(err, "failed to marshal private key")
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(privatePath, privPEM, 0600); err != nil {
		return licerrors.LicenseFile(err, "failed to write private key %s", privatePath)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return licerrors.Cryptographic(err, "failed to marshal public key")
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(publicPath, pubPEM, 0644); err != nil {
		return licerrors.LicenseFile(err, "failed to write public key %s", publicPath)
	}
	return nil
}

// LoadRSAPrivateKey reads a PEM-encoded private key and verifies it is an
// RSA key of sufficient size. Both PKCS#8 and PKCS#1 encodings are accepted.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, licerrors.LicenseFile(err, "failed to read private key %s", path)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, licerrors.Configuration("no PEM block found in %s", path)
	}

	var parsed interface{}
	if parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes); err != nil {
		if parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
			return nil, licerrors.Cryptographic(err, "failed to parse private key %s", path)
		}
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, licerrors.Configuration("loaded private key is not an RSA private key (got %T)", parsed)
	}
	if key.N.BitLen() < MinRSAKeyBits {
		return nil, licerrors.Configuration("RSA private key is %d bits, minimum is %d", key.N.BitLen(), MinRSAKeyBits)
	}
	return key, nil
}

// LoadRSAPublicKey reads a PEM-encoded PKIX public key and verifies it is
// an RSA key.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, licerrors.LicenseFile(err, "failed to read public key %s", path)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, licerrors.Configuration("no PEM block found in %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, licerrors.Cryptographic(err, "failed to parse public key %s", path)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, licerrors.Configuration("loaded public key is not an RSA public key (got %T)", parsed)
	}
	return key, nil
}

// FormatKeyFingerprint returns a short human-readable key identifier for
// logging, derived from the public modulus.
func FormatKeyFingerprint(key *rsa.PublicKey) string {
	if key == nil {
		return "none"
	}
	return fmt.Sprintf("rsa-%d", key.N.BitLen())
}
