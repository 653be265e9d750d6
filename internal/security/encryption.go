package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"golang.org/x/crypto/scrypt"

	licerrors "allyinlic/internal/errors"
)

// scrypt parameters, OWASP recommended minimums for interactive use.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32 // AES-256
	gcmNonceSize = 12
)

// envelopeVersion tags the on-disk payload format.
const envelopeVersion = 1

// envelope is the versioned on-disk wrapper around an AES-256-GCM
// ciphertext. The GCM authentication tag is carried inside Ciphertext.
type envelope struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Timestamp  int64  `json:"timestamp"`
}

// Store provides authenticated symmetric encryption for JSON-serializable
// state written to the filesystem.
//
// Decryption failure is reported the same way as "file absent": Load returns
// found=false for missing, corrupt, and foreign-key data alike. This makes
// the system forgiving of deleted or tampered state files, at the cost of
// making silent data loss indistinguishable from a fresh install. That
// trade-off is intentional and load-bearing; callers depend on it.
type Store struct {
	secret []byte
}

// NewStore creates a store keyed by the given secret. A nil or empty secret
// generates a fresh random one; state written under a generated secret is
// unreadable by any other store instance, so callers that need persistence
// across restarts must supply the same secret every time.
func NewStore(secret []byte) *Store {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			// No entropy source means no safe way to continue.
			panic("security: failed to generate store secret: " + err.Error())
		}
		slog.Debug("encrypted store created with ephemeral secret")
	}
	return &Store{secret: secret}
}

// Encrypt serializes v as JSON and seals it into a versioned envelope.
func (s *Store) Encrypt(v interface{}) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, licerrors.Cryptographic(err, "failed to serialize data for encryption")
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, licerrors.Cryptographic(err, "failed to generate salt")
	}

	gcm, err := s.newGCM(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, licerrors.Cryptographic(err, "failed to generate nonce")
	}

	env := envelope{
		Version:    envelopeVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
		Timestamp:  time.Now().Unix(),
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return nil, licerrors.Cryptographic(err, "failed to serialize envelope")
	}
	return blob, nil
}

// Decrypt opens an envelope and unmarshals the plaintext into out. It
// returns false, without an error, when the blob is corrupt, was written
// under a different secret, or has an unknown version.
func (s *Store) Decrypt(blob []byte, out interface{}) bool {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return false
	}
	if env.Version != envelopeVersion || len(env.Nonce) != gcmNonceSize {
		return false
	}

	gcm, err := s.newGCM(env.Salt)
	if err != nil {
		return false
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return false
	}
	return json.Unmarshal(plaintext, out) == nil
}

// Save encrypts v and writes it to path with owner-only permissions.
func (s *Store) Save(path string, v interface{}) error {
	blob, err := s.Encrypt(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return licerrors.LicenseFile(err, "failed to write %s", path)
	}
	return nil
}

// Load reads and decrypts path into out. A missing, unreadable, or
// undecryptable file yields found=false with no error.
func (s *Store) Load(path string, out interface{}) bool {
	blob, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return s.Decrypt(blob, out)
}

func (s *Store) newGCM(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.secret, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, licerrors.Cryptographic(err, "key derivation failed")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, licerrors.Cryptographic(err, "failed to create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, licerrors.Cryptographic(err, "failed to create GCM")
	}
	return gcm, nil
}
