package security

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	licerrors "allyinlic/internal/errors"
)

// SigType selects the signature scheme embedded in a license key.
type SigType string

const (
	// SigTypeHMAC uses a shared symmetric secret. Suitable for deployments
	// where the secret can be baked into the binary.
	SigTypeHMAC SigType = "hmac"
	// SigTypeRSA uses RSA-PSS with SHA-256. The private key stays with the
	// vendor; clients only need the public key to verify.
	SigTypeRSA SigType = "rsa"
)

// MinRSAKeyBits is the minimum accepted RSA modulus size.
const MinRSAKeyBits = 2048

// Signer computes and verifies license key signatures. The HMAC secret is
// always present; RSA keys are optional and attached with WithRSAKeys so
// that key-type and key-size checks happen once at construction rather than
// on every signing call.
type Signer struct {
	secret     []byte
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewSigner creates a signer with the given HMAC secret. A nil or empty
// secret generates a fresh random one, which means signatures will not
// verify across process restarts unless the caller persists the secret.
func NewSigner(secret []byte) *Signer {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			// No entropy source means no safe way to continue.
			panic("security: failed to generate HMAC secret: " + err.Error())
		}
	}
	return &Signer{secret: secret}
}

// WithRSAKeys attaches RSA signing and/or verification keys. Either may be
// nil; signing requires the private key, verification the public one.
func (s *Signer) WithRSAKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey) error {
	if privateKey != nil && privateKey.N.BitLen() < MinRSAKeyBits {
		return licerrors.Configuration("RSA private key is %d bits, minimum is %d", privateKey.N.BitLen(), MinRSAKeyBits)
	}
	if publicKey != nil && publicKey.N.BitLen() < MinRSAKeyBits {
		return licerrors.Configuration("RSA public key is %d bits, minimum is %d", publicKey.N.BitLen(), MinRSAKeyBits)
	}
	s.privateKey = privateKey
	s.publicKey = publicKey
	return nil
}

// HasPrivateKey reports whether RSA signing is available.
func (s *Signer) HasPrivateKey() bool { return s.privateKey != nil }

// HasPublicKey reports whether RSA verification is available.
func (s *Signer) HasPublicKey() bool { return s.publicKey != nil }

// Sign produces the signature string for the canonical license data. HMAC
// signatures are lowercase hex; RSA signatures are base64url so they can be
// embedded in the pipe-delimited key string.
func (s *Signer) Sign(data []byte, sigtype SigType) (string, error) {
	switch sigtype {
	case SigTypeRSA:
		if s.privateKey == nil {
			return "", licerrors.Configuration("RSA private key not loaded for signing")
		}
		digest := sha256.Sum256(data)
		sig, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthAuto,
		})
		if err != nil {
			return "", licerrors.Cryptographic(err, "RSA signing failed")
		}
		return base64.URLEncoding.EncodeToString(sig), nil
	case SigTypeHMAC:
		mac := hmac.New(sha256.New, s.secret)
		mac.Write(data)
		return hex.EncodeToString(mac.Sum(nil)), nil
	default:
		return "", licerrors.Configuration("unknown signature type: %s", sigtype)
	}
}

// Verify checks a signature over the canonical license data. The boolean is
// the verification outcome; the string carries the human-readable rejection
// reason. Verification failures are results, never errors: a tampered or
// wrong-key signature must not crash a key check.
func (s *Signer) Verify(data []byte, signature string, sigtype SigType) (bool, string) {
	switch sigtype {
	case SigTypeRSA:
		if s.publicKey == nil {
			return false, "RSA public key not loaded for verification"
		}
		raw, err := base64.URLEncoding.DecodeString(signature)
		if err != nil {
			return false, fmt.Sprintf("Invalid RSA signature: %v", err)
		}
		digest := sha256.Sum256(data)
		if err := rsa.VerifyPSS(s.publicKey, crypto.SHA256, digest[:], raw, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthAuto,
		}); err != nil {
			return false, fmt.Sprintf("Invalid RSA signature: %v", err)
		}
		return true, ""
	case SigTypeHMAC:
		mac := hmac.New(sha256.New, s.secret)
		mac.Write(data)
		expected := hex.EncodeToString(mac.Sum(nil))
		// Constant-time comparison; never short-circuit on secrets.
		if !hmac.Equal([]byte(signature), []byte(expected)) {
			return false, "Invalid HMAC signature"
		}
		return true, ""
	default:
		return false, fmt.Sprintf("unknown signature type: %s", sigtype)
	}
}
