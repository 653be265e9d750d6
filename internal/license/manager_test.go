package license

import (
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licerrors "allyinlic/internal/errors"
	"allyinlic/internal/security"
)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	if opts.SecretKey == nil {
		opts.SecretKey = []byte("test-secret")
	}
	m, err := NewManager(opts)
	require.NoError(t, err)
	return m
}

func TestNewManagerDefaults(t *testing.T) {
	m := newTestManager(t, Options{})
	assert.Equal(t, "AllyIn", m.ProductID())
	assert.Equal(t, DefaultTrialDays, m.TrialDays())
	assert.Len(t, m.MachineID(), security.MachineIDLength)
	assert.NotEmpty(t, m.LicenseFile())
}

func TestNewManagerRejectsInvalidOptions(t *testing.T) {
	_, err := NewManager(Options{ProductID: "CON", DataDir: t.TempDir()})
	assert.ErrorIs(t, err, licerrors.ErrInvalidProduct)

	_, err = NewManager(Options{TrialDays: -1, DataDir: t.TempDir()})
	assert.ErrorIs(t, err, licerrors.ErrInvalidTrialPeriod)
}

func TestGenerateAndValidateKeyHMAC(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	m := newTestManager(t, Options{Clock: func() time.Time { return current }})

	key, record, err := m.GenerateKey("CUSTOMER1", 365, "paid", "hmac")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "AllyIn", record.ProductID)
	assert.Equal(t, m.MachineID(), record.MachineID)
	assert.Equal(t, "20250301T120000", record.StartDate)
	assert.Equal(t, "20260301T120000", record.EndDate)

	ok, validated, reason := m.ValidateKey(key)
	require.True(t, ok, "reason: %s", reason)
	assert.Equal(t, "CUSTOMER1", validated.CustomerID)
	assert.Equal(t, "paid", validated.LicenseType)
	assert.Equal(t, 365.0, validated.Days)
	assert.NotEmpty(t, validated.ValidatedAt)
}

func TestGenerateAndValidateKeyRSA(t *testing.T) {
	dir := t.TempDir()
	privatePath := filepath.Join(dir, "private_key.pem")
	publicPath := filepath.Join(dir, "public_key.pem")
	rsaKey, err := security.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	require.NoError(t, security.SaveRSAKeyPair(rsaKey, privatePath, publicPath))

	m := newTestManager(t, Options{
		RSAPrivateKeyPath: privatePath,
		RSAPublicKeyPath:  publicPath,
	})

	key, record, err := m.GenerateKey("CUSTOMER1", 30, "pro", "rsa")
	require.NoError(t, err)
	assert.Equal(t, "rsa", record.SigType)

	ok, validated, reason := m.ValidateKey(key)
	require.True(t, ok, "reason: %s", reason)
	assert.Equal(t, "pro", validated.LicenseType)
}

func TestGenerateKeyRSAWithoutPrivateKey(t *testing.T) {
	m := newTestManager(t, Options{})
	_, _, err := m.GenerateKey("CUSTOMER1", 30, "pro", "rsa")
	require.Error(t, err)
	assert.ErrorIs(t, err, licerrors.ErrConfiguration)
}

func TestGenerateKeyRejectsInvalidInputs(t *testing.T) {
	m := newTestManager(t, Options{})

	_, _, err := m.GenerateKey("", 30, "trial", "hmac")
	assert.ErrorIs(t, err, licerrors.ErrInvalidCustomer)

	_, _, err = m.GenerateKey("CUSTOMER1", -1, "trial", "hmac")
	assert.ErrorIs(t, err, licerrors.ErrInvalidTrialPeriod)

	_, _, err = m.GenerateKey("CUSTOMER1", 30, "platinum", "hmac")
	assert.Error(t, err)

	_, _, err = m.GenerateKey("CUSTOMER1", 30, "trial", "ecdsa")
	assert.Error(t, err)
}

func TestValidateKeyFractionalDays(t *testing.T) {
	m := newTestManager(t, Options{})

	// 0.002 days is under three minutes; the days field must survive the
	// wire format without rounding to a whole day.
	for _, days := range []float64{0.5, 0.002} {
		key, _, err := m.GenerateKey("CUSTOMER1", days, "trial", "hmac")
		require.NoError(t, err)

		ok, record, reason := m.ValidateKey(key)
		require.True(t, ok, "days %v, reason: %s", days, reason)
		assert.Equal(t, days, record.Days)
	}
}

func TestValidateKeyRejectsMalformed(t *testing.T) {
	m := newTestManager(t, Options{})

	tests := []struct {
		name   string
		key    string
		reason string
	}{
		{name: "not base64", key: "not a license key!!!", reason: "License validation error"},
		{name: "too few fields", key: base64.URLEncoding.EncodeToString([]byte("a|b|c")), reason: "Invalid license key format"},
		{name: "empty", key: "", reason: "Invalid license key format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, record, reason := m.ValidateKey(tt.key)
			assert.False(t, ok)
			assert.Nil(t, record)
			assert.Contains(t, reason, tt.reason)
		})
	}
}

func TestValidateKeyRejectsTampering(t *testing.T) {
	m := newTestManager(t, Options{})
	key, _, err := m.GenerateKey("CUSTOMER1", 30, "paid", "hmac")
	require.NoError(t, err)

	// Flip one character of the encoded key, staying inside the base64url
	// alphabet so decoding succeeds and the signature check does the work.
	tampered := []byte(key)
	for i, c := range tampered {
		if c != '=' {
			if c == 'A' {
				tampered[i] = 'B'
			} else {
				tampered[i] = 'A'
			}
			break
		}
	}
	ok, _, _ := m.ValidateKey(string(tampered))
	assert.False(t, ok)
}

func TestValidateKeyRejectsWrongSecret(t *testing.T) {
	dataDir := t.TempDir()
	issuer := newTestManager(t, Options{DataDir: dataDir, SecretKey: []byte("secret-a")})
	key, _, err := issuer.GenerateKey("CUSTOMER1", 30, "paid", "hmac")
	require.NoError(t, err)

	other := newTestManager(t, Options{DataDir: dataDir, SecretKey: []byte("secret-b")})
	ok, _, reason := other.ValidateKey(key)
	assert.False(t, ok)
	assert.Equal(t, "Invalid HMAC signature", reason)
}

func TestValidateKeyRejectsWrongProduct(t *testing.T) {
	dataDir := t.TempDir()
	issuer := newTestManager(t, Options{DataDir: dataDir, ProductID: "AppA"})
	key, _, err := issuer.GenerateKey("CUSTOMER1", 30, "paid", "hmac")
	require.NoError(t, err)

	other := newTestManager(t, Options{DataDir: dataDir, ProductID: "AppB"})
	ok, _, reason := other.ValidateKey(key)
	assert.False(t, ok)
	assert.Equal(t, "Invalid product ID", reason)
}

func TestValidateKeyRejectsForeignMachine(t *testing.T) {
	m := newTestManager(t, Options{})

	// Hand-assemble a correctly signed key carrying another machine's id.
	now := time.Now()
	record := &LicenseRecord{
		ProductID:   m.ProductID(),
		CustomerID:  "CUSTOMER1",
		MachineID:   "deadbeefdeadbeef",
		LicenseType: "paid",
		StartDate:   now.Format(DateFormat),
		EndDate:     now.Add(30 * 24 * time.Hour).Format(DateFormat),
		Days:        30,
		SigType:     "hmac",
	}
	data := canonicalString(record)
	sig, err := security.NewSigner([]byte("test-secret")).Sign([]byte(data), security.SigTypeHMAC)
	require.NoError(t, err)
	key := base64.URLEncoding.EncodeToString([]byte(data + "|" + sig))

	ok, _, reason := m.ValidateKey(key)
	assert.False(t, ok)
	assert.Equal(t, "License key not valid for this machine", reason)
}

func TestValidateKeyExpiry(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	m := newTestManager(t, Options{Clock: func() time.Time { return current }})

	key, _, err := m.GenerateKey("CUSTOMER1", 1, "trial", "hmac")
	require.NoError(t, err)

	// Still inside the window.
	current = current.Add(23 * time.Hour)
	ok, _, reason := m.ValidateKey(key)
	require.True(t, ok, "reason: %s", reason)

	// One hour past the end date.
	current = current.Add(2 * time.Hour)
	ok, _, reason = m.ValidateKey(key)
	assert.False(t, ok)
	assert.Equal(t, "License key has expired", reason)
}

func TestValidateKeyExpiryBoundarySeconds(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	m := newTestManager(t, Options{Clock: func() time.Time { return current }})

	key, record, err := m.GenerateKey("CUSTOMER1", 1, "trial", "hmac")
	require.NoError(t, err)
	end, err := time.ParseInLocation(DateFormat, record.EndDate, time.Local)
	require.NoError(t, err)

	current = end.Add(-time.Second)
	ok, _, reason := m.ValidateKey(key)
	assert.True(t, ok, "one second before the end date, reason: %s", reason)

	// The end date itself is inclusive: expiry requires now strictly after it.
	current = end
	ok, _, reason = m.ValidateKey(key)
	assert.True(t, ok, "at the end date, reason: %s", reason)

	current = end.Add(time.Second)
	ok, _, reason = m.ValidateKey(key)
	assert.False(t, ok)
	assert.Equal(t, "License key has expired", reason)
}

func TestInstallAndLicenseLifecycle(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	m := newTestManager(t, Options{Clock: func() time.Time { return current }})

	// Nothing installed yet.
	assert.Nil(t, m.CurrentLicense())
	ok, _, reason := m.IsLicenseValid()
	assert.False(t, ok)
	assert.Equal(t, "No license found", reason)
	assert.Zero(t, m.DaysRemaining())

	key, _, err := m.GenerateKey("CUSTOMER1", 10, "paid", "hmac")
	require.NoError(t, err)

	ok, message := m.Install(key)
	require.True(t, ok, "message: %s", message)
	assert.Equal(t, "License installed successfully", message)

	installed := m.CurrentLicense()
	require.NotNil(t, installed)
	assert.Equal(t, "CUSTOMER1", installed.CustomerID)

	ok, record, _ := m.IsLicenseValid()
	require.True(t, ok)
	assert.Equal(t, "paid", record.LicenseType)
	assert.Equal(t, 10, m.DaysRemaining())

	// Nine days and an hour later: less than a whole day left of day ten.
	current = current.Add(9*24*time.Hour + time.Hour)
	assert.Equal(t, 0, m.DaysRemaining())
	ok, _, _ = m.IsLicenseValid()
	assert.True(t, ok, "license is still inside its window")

	// Past the end date.
	current = current.Add(24 * time.Hour)
	ok, _, reason = m.IsLicenseValid()
	assert.False(t, ok)
	assert.Equal(t, "License has expired", reason)
	assert.Zero(t, m.DaysRemaining())
}

func TestInstallRejectsInvalidKey(t *testing.T) {
	m := newTestManager(t, Options{})
	ok, message := m.Install("garbage")
	assert.False(t, ok)
	assert.NotEmpty(t, message)
	assert.Nil(t, m.CurrentLicense())
}

func TestRevokeIsIdempotent(t *testing.T) {
	m := newTestManager(t, Options{})
	key, _, err := m.GenerateKey("CUSTOMER1", 30, "paid", "hmac")
	require.NoError(t, err)
	ok, _ := m.Install(key)
	require.True(t, ok)

	ok, message := m.Revoke()
	assert.True(t, ok)
	assert.Equal(t, "License revoked", message)
	assert.Nil(t, m.CurrentLicense())

	ok, message = m.Revoke()
	assert.True(t, ok)
	assert.Equal(t, "License revoked", message)
}

func TestInstallationMarkerIsFirstWriteWins(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	firstInstall := current
	m := newTestManager(t, Options{Clock: func() time.Time { return current }})

	key, _, err := m.GenerateKey("CUSTOMER1", 30, "paid", "hmac")
	require.NoError(t, err)
	ok, _ := m.Install(key)
	require.True(t, ok)

	info := m.InstallationInfo()
	require.NotNil(t, info)
	assert.WithinDuration(t, firstInstall, info.FirstInstallDate, time.Second)

	// Revoke and reinstall much later; the marker must keep its original date
	// so the machine-wide trial clock cannot be reset.
	ok, _ = m.Revoke()
	require.True(t, ok)
	current = current.Add(90 * 24 * time.Hour)
	key2, _, err := m.GenerateKey("CUSTOMER1", 30, "paid", "hmac")
	require.NoError(t, err)
	ok, _ = m.Install(key2)
	require.True(t, ok)

	info = m.InstallationInfo()
	require.NotNil(t, info)
	assert.WithinDuration(t, firstInstall, info.FirstInstallDate, time.Second)
}

func TestFingerprintBinding(t *testing.T) {
	m := newTestManager(t, Options{})

	t.Run("unbound record passes", func(t *testing.T) {
		ok, err := m.ValidateFingerprintBinding(&LicenseRecord{})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("bound record matches this machine", func(t *testing.T) {
		record := &LicenseRecord{}
		require.NoError(t, m.BindCurrentFingerprint(record))
		assert.Len(t, record.MachineFingerprint, 64)

		ok, err := m.ValidateFingerprintBinding(record)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("foreign fingerprint fails", func(t *testing.T) {
		record := &LicenseRecord{MachineFingerprint: "0000000000000000000000000000000000000000000000000000000000000000"}
		ok, err := m.ValidateFingerprintBinding(record)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey(""))
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "ABCD****WXYZ", MaskKey("ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
}
