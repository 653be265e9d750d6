package security

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

func TestStoreEncryptDecryptRoundTrip(t *testing.T) {
	store := NewStore([]byte("a stable secret"))
	in := testRecord{Name: "license", Count: 3, Score: 0.8}

	blob, err := store.Encrypt(in)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "license", "plaintext must not appear in the envelope")

	var out testRecord
	require.True(t, store.Decrypt(blob, &out))
	assert.Equal(t, in, out)
}

func TestStoreDecryptForeignKeyReadsAsAbsent(t *testing.T) {
	blob, err := NewStore([]byte("secret-a")).Encrypt(testRecord{Name: "x"})
	require.NoError(t, err)

	var out testRecord
	assert.False(t, NewStore([]byte("secret-b")).Decrypt(blob, &out))
}

func TestStoreDecryptCorruptBlobReadsAsAbsent(t *testing.T) {
	store := NewStore([]byte("secret"))

	tests := []struct {
		name string
		blob []byte
	}{
		{name: "empty", blob: nil},
		{name: "not JSON", blob: []byte("garbage")},
		{name: "wrong shape", blob: []byte(`{"foo": "bar"}`)},
		{name: "unknown version", blob: []byte(`{"version": 9, "salt": "AA==", "nonce": "AAAAAAAAAAAAAAAA", "ciphertext": "AA=="}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out testRecord
			assert.False(t, store.Decrypt(tt.blob, &out))
		})
	}
}

func TestStoreDecryptTamperedCiphertext(t *testing.T) {
	store := NewStore([]byte("secret"))
	blob, err := store.Encrypt(testRecord{Name: "original"})
	require.NoError(t, err)

	// Flip one byte inside the JSON envelope; whichever field it lands in,
	// GCM authentication or JSON parsing must reject the result.
	tampered := make([]byte, len(blob))
	copy(tampered, blob)
	tampered[len(tampered)/2] ^= 0x01

	var out testRecord
	assert.False(t, store.Decrypt(tampered, &out))
}

func TestStoreSaveLoad(t *testing.T) {
	store := NewStore([]byte("secret"))
	path := t.TempDir() + "/state.dat"
	in := testRecord{Name: "persisted", Count: 1}

	require.NoError(t, store.Save(path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	var out testRecord
	require.True(t, store.Load(path, &out))
	assert.Equal(t, in, out)
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore([]byte("secret"))
	var out testRecord
	assert.False(t, store.Load(t.TempDir()+"/missing.dat", &out))
}

func TestStoreEphemeralSecretCannotReadPersistedState(t *testing.T) {
	path := t.TempDir() + "/state.dat"
	require.NoError(t, NewStore(nil).Save(path, testRecord{Name: "lost"}))

	// A second instance without the original secret sees nothing. This is
	// the documented operational requirement to pin the secret.
	var out testRecord
	assert.False(t, NewStore(nil).Load(path, &out))
}
