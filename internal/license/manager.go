package license

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"allyinlic/internal/config"
	licerrors "allyinlic/internal/errors"
	"allyinlic/internal/security"
)

// DateFormat is the fixed timestamp layout used inside license keys:
// second precision, no timezone suffix. Timestamps are local time of the
// generating machine.
const DateFormat = "20060102T150405"

// licenseKeyFields is the field count of a decoded key: 8 data fields plus
// the signature.
const licenseKeyFields = 9

// DefaultTrialDays is the trial period applied when none is configured.
const DefaultTrialDays = 30.0

// LicenseRecord is the installed license for a product on a machine.
type LicenseRecord struct {
	ProductID          string  `json:"product_id"`
	CustomerID         string  `json:"customer_id"`
	MachineID          string  `json:"machine_id"`
	LicenseType        string  `json:"license_type"`
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	Days               float64 `json:"days"`
	SigType            string  `json:"sigtype"`
	CreatedAt          string  `json:"created_at,omitempty"`
	ValidatedAt        string  `json:"validated_at,omitempty"`
	MachineFingerprint string  `json:"machine_fingerprint,omitempty"`
}

// Options configures a Manager.
type Options struct {
	// ProductID identifies the licensed product. Defaults to "AllyIn".
	ProductID string
	// TrialDays is the trial period; fractional values give sub-day trials.
	// Defaults to DefaultTrialDays.
	TrialDays float64
	// UserID enables per-user trial tracking when set.
	UserID string
	// SecretKey keys the HMAC signer and the encrypted store. Without it a
	// fresh random secret is generated and previously persisted state
	// becomes unreadable, so production deployments must pin it.
	SecretKey []byte
	// RSAPrivateKeyPath and RSAPublicKeyPath point at PEM key files. Either
	// may be absent; missing files are skipped, matching offline clients
	// that ship only the public key.
	RSAPrivateKeyPath string
	RSAPublicKeyPath  string
	// LicenseFile overrides the default license file location.
	LicenseFile string
	// DataDir overrides the per-OS data directory.
	DataDir string
	// Clock overrides wall-clock time in tests.
	Clock func() time.Time
	// Metrics receives operation counters when set.
	Metrics *Metrics
}

// Manager is the licensing facade. It exclusively owns the license,
// installation and trials files at its configured paths; nothing else in
// the system should write them directly.
type Manager struct {
	productID string
	trialDays float64
	userID    string

	store  *security.Store
	signer *security.Signer
	fp     *security.Generator

	machineID        string
	licenseFile      string
	installationFile string
	trialsFile       string

	// trialsMu serializes read-modify-write cycles on the trials file for
	// threads within this process. It does not protect against a second
	// process racing on the same file; see the package documentation.
	trialsMu sync.Mutex

	clock   func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// NewManager validates the options and builds a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.ProductID == "" {
		opts.ProductID = "AllyIn"
	}
	productID, err := security.ValidateProductID(opts.ProductID)
	if err != nil {
		return nil, err
	}

	if opts.TrialDays == 0 {
		opts.TrialDays = DefaultTrialDays
	}
	trialDays, err := security.ValidateTrialPeriod(opts.TrialDays)
	if err != nil {
		return nil, err
	}

	var paths *config.Paths
	if opts.DataDir != "" {
		paths = config.NewPaths(opts.DataDir)
	} else {
		paths, err = config.GetPaths()
		if err != nil {
			return nil, licerrors.LicenseFile(err, "failed to resolve data directory")
		}
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, licerrors.LicenseFile(err, "failed to create data directory")
	}

	licenseFile := paths.LicenseFile
	if opts.LicenseFile != "" {
		licenseFile, err = security.ValidateFilePath(opts.LicenseFile)
		if err != nil {
			return nil, err
		}
	}

	signer := security.NewSigner(opts.SecretKey)
	publicKey, err := loadRSAKeys(signer, opts.RSAPrivateKeyPath, opts.RSAPublicKeyPath)
	if err != nil {
		return nil, err
	}

	fp := security.NewGenerator()
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	m := &Manager{
		productID:        productID,
		trialDays:        trialDays,
		userID:           opts.UserID,
		store:            security.NewStore(opts.SecretKey),
		signer:           signer,
		fp:               fp,
		machineID:        fp.MachineID(),
		licenseFile:      licenseFile,
		installationFile: paths.InstallationFile,
		trialsFile:       paths.TrialsFile,
		clock:            clock,
		logger:           slog.Default().With(slog.String("component", "license"), slog.String("product_id", productID)),
		metrics:          opts.Metrics,
	}
	if m.signer.HasPrivateKey() || m.signer.HasPublicKey() {
		m.logger.Debug("RSA keys attached",
			slog.Bool("signing", m.signer.HasPrivateKey()),
			slog.String("verification_key", security.FormatKeyFingerprint(publicKey)),
		)
	}
	return m, nil
}

// loadRSAKeys attaches RSA keys to the signer where the key files exist and
// returns the loaded public key for logging. A configured path pointing at a
// missing file is skipped rather than treated as an error; a present but
// non-RSA or undersized key is a deployment misconfiguration and fails
// construction.
func loadRSAKeys(signer *security.Signer, privatePath, publicPath string) (*rsa.PublicKey, error) {
	var privateKey *rsa.PrivateKey
	var publicKey *rsa.PublicKey
	var err error
	if privatePath != "" && config.FileExists(privatePath) {
		privateKey, err = security.LoadRSAPrivateKey(privatePath)
		if err != nil {
			return nil, err
		}
	}
	if publicPath != "" && config.FileExists(publicPath) {
		publicKey, err = security.LoadRSAPublicKey(publicPath)
		if err != nil {
			return nil, err
		}
	}
	if privateKey == nil && publicKey == nil {
		return nil, nil
	}
	if err := signer.WithRSAKeys(privateKey, publicKey); err != nil {
		return nil, err
	}
	return publicKey, nil
}

// ProductID returns the configured product identifier.
func (m *Manager) ProductID() string { return m.productID }

// MachineID returns this machine's short identifier.
func (m *Manager) MachineID() string { return m.machineID }

// TrialDays returns the configured trial period.
func (m *Manager) TrialDays() float64 { return m.trialDays }

// LicenseFile returns the path of the license state file.
func (m *Manager) LicenseFile() string { return m.licenseFile }

// GenerateKey creates a signed license key bound to this machine. Note the
// binding: keys carry the machine_id of the machine that ran the generator,
// which fits offline or server-side issuance flows only.
func (m *Manager) GenerateKey(customerID string, days float64, licenseType, sigtype string) (string, *LicenseRecord, error) {
	customerID, err := security.ValidateCustomerID(customerID)
	if err != nil {
		return "", nil, err
	}
	days, err = security.ValidateLicenseDuration(days)
	if err != nil {
		return "", nil, err
	}
	licenseType, err = security.ValidateLicenseType(licenseType)
	if err != nil {
		return "", nil, err
	}
	sigtype, err = security.ValidateSignatureType(sigtype)
	if err != nil {
		return "", nil, err
	}

	now := m.clock()
	startDate := now.Format(DateFormat)
	endDate := now.Add(daysDuration(days)).Format(DateFormat)

	record := &LicenseRecord{
		ProductID:   m.productID,
		CustomerID:  customerID,
		MachineID:   m.machineID,
		LicenseType: licenseType,
		StartDate:   startDate,
		EndDate:     endDate,
		Days:        days,
		SigType:     sigtype,
		CreatedAt:   now.Format(DateFormat),
	}

	dataString := canonicalString(record)
	signature, err := m.signer.Sign([]byte(dataString), security.SigType(sigtype))
	if err != nil {
		return "", nil, err
	}
	key := base64.URLEncoding.EncodeToString([]byte(dataString + "|" + signature))

	m.metrics.recordKeyGeneration(context.Background(), sigtype)
	m.logger.Info("license key generated",
		slog.String("license_key", MaskKey(key)),
		slog.String("customer_id", customerID),
		slog.String("license_type", licenseType),
		slog.String("sigtype", sigtype),
		slog.String("end_date", endDate),
	)
	return key, record, nil
}

// ValidateKey checks a license key string. The boolean is the validation
// outcome and reason carries the rejection message; a malformed, tampered
// or foreign key is an expected business outcome, so nothing in this path
// returns an error or panics.
func (m *Manager) ValidateKey(key string) (ok bool, record *LicenseRecord, reason string) {
	// Wall clock on purpose: the injectable clock drives expiry decisions,
	// while the duration metric measures real elapsed time.
	start := time.Now()
	defer func() {
		m.metrics.recordValidation(context.Background(), ok, time.Since(start))
	}()

	decoded, err := base64.URLEncoding.DecodeString(key)
	if err != nil {
		return false, nil, fmt.Sprintf("License validation error: %v", err)
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != licenseKeyFields {
		return false, nil, "Invalid license key format"
	}
	productID, customerID, machineID := parts[0], parts[1], parts[2]
	startDate, endDate, daysStr := parts[3], parts[4], parts[5]
	licenseType, sigtype, signature := parts[6], parts[7], parts[8]

	dataString := strings.Join(parts[:licenseKeyFields-1], "|")

	if productID != m.productID {
		return false, nil, "Invalid product ID"
	}
	// Exact machine equality at this layer; the fuzzy tolerance of
	// ValidateBinding applies only to full hardware fingerprints.
	if machineID != m.machineID {
		return false, nil, "License key not valid for this machine"
	}

	if verified, verifyReason := m.signer.Verify([]byte(dataString), signature, security.SigType(sigtype)); !verified {
		return false, nil, verifyReason
	}

	endTime, err := time.ParseInLocation(DateFormat, endDate, time.Local)
	if err != nil {
		return false, nil, fmt.Sprintf("License validation error: %v", err)
	}
	if m.clock().After(endTime) {
		return false, nil, "License key has expired"
	}

	days, err := strconv.ParseFloat(daysStr, 64)
	if err != nil {
		return false, nil, fmt.Sprintf("License validation error: %v", err)
	}

	record = &LicenseRecord{
		ProductID:   productID,
		CustomerID:  customerID,
		MachineID:   machineID,
		LicenseType: licenseType,
		StartDate:   startDate,
		EndDate:     endDate,
		Days:        days,
		SigType:     sigtype,
		ValidatedAt: m.clock().Format(DateFormat),
	}
	return true, record, ""
}

// Install validates a key and persists it as the current license. The
// first-ever install on this machine also writes the installation marker;
// that marker is first-write-wins and never overwritten afterwards.
func (m *Manager) Install(key string) (bool, string) {
	ok, record, reason := m.ValidateKey(key)
	if !ok {
		m.logger.Warn("license install rejected",
			slog.String("license_key", MaskKey(key)),
			slog.String("reason", reason),
		)
		return false, reason
	}

	if err := m.store.Save(m.licenseFile, record); err != nil {
		m.logger.Error("failed to persist license", slog.String("error", err.Error()))
		return false, fmt.Sprintf("Failed to save license: %v", err)
	}

	if !config.FileExists(m.installationFile) {
		installation := &InstallationRecord{
			FirstInstallDate: m.clock(),
			MachineID:        m.machineID,
			ProductID:        m.productID,
		}
		if err := m.store.Save(m.installationFile, installation); err != nil {
			m.logger.Warn("failed to write installation marker", slog.String("error", err.Error()))
		}
	}

	m.logger.Info("license installed",
		slog.String("license_key", MaskKey(key)),
		slog.String("customer_id", record.CustomerID),
		slog.String("end_date", record.EndDate),
	)
	return true, "License installed successfully"
}

// CurrentLicense returns the installed license record, or nil when no
// readable license exists. An undecryptable file reads as absent.
func (m *Manager) CurrentLicense() *LicenseRecord {
	var record LicenseRecord
	if !m.store.Load(m.licenseFile, &record) {
		return nil
	}
	return &record
}

// IsLicenseValid reports whether the installed license is currently
// entitled. It fails closed: no readable license means not valid.
func (m *Manager) IsLicenseValid() (bool, *LicenseRecord, string) {
	record := m.CurrentLicense()
	if record == nil {
		return false, nil, "No license found"
	}
	endTime, err := time.ParseInLocation(DateFormat, record.EndDate, time.Local)
	if err != nil {
		return false, nil, fmt.Sprintf("License validation error: %v", err)
	}
	if m.clock().After(endTime) {
		return false, nil, "License has expired"
	}
	return true, record, ""
}

// DaysRemaining returns whole days left on the installed license, zero when
// invalid or expired.
func (m *Manager) DaysRemaining() int {
	ok, record, _ := m.IsLicenseValid()
	if !ok {
		return 0
	}
	endTime, err := time.ParseInLocation(DateFormat, record.EndDate, time.Local)
	if err != nil {
		return 0
	}
	remaining := int(endTime.Sub(m.clock()).Hours() / 24)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Revoke deletes the installed license. Idempotent: revoking when nothing
// is installed still succeeds.
func (m *Manager) Revoke() (bool, string) {
	if config.FileExists(m.licenseFile) {
		if err := os.Remove(m.licenseFile); err != nil {
			m.logger.Error("failed to remove license file", slog.String("error", err.Error()))
			return false, fmt.Sprintf("Failed to revoke license: %v", err)
		}
	}
	m.logger.Info("license revoked")
	return true, "License revoked"
}

// ValidateFingerprintBinding checks the stored license's hardware
// fingerprint against this machine, tolerating minor drift.
func (m *Manager) ValidateFingerprintBinding(record *LicenseRecord) (bool, error) {
	if record == nil || record.MachineFingerprint == "" {
		return true, nil
	}
	current, err := m.fp.FullFingerprint()
	if err != nil {
		return false, err
	}
	matched := security.ValidateBinding(record.MachineFingerprint, current)
	if !matched {
		m.metrics.recordFingerprintMismatch(context.Background())
	}
	return matched, nil
}

// BindCurrentFingerprint stamps the record with this machine's full
// hardware fingerprint.
func (m *Manager) BindCurrentFingerprint(record *LicenseRecord) error {
	fingerprint, err := m.fp.FullFingerprint()
	if err != nil {
		return err
	}
	record.MachineFingerprint = fingerprint
	return nil
}

// canonicalString builds the signed portion of a license key: the first
// eight pipe-delimited fields.
func canonicalString(r *LicenseRecord) string {
	return strings.Join([]string{
		r.ProductID,
		r.CustomerID,
		r.MachineID,
		r.StartDate,
		r.EndDate,
		formatDays(r.Days),
		r.LicenseType,
		r.SigType,
	}, "|")
}

// formatDays renders the duration field without trailing zeros so that
// whole-day values round-trip as integers.
func formatDays(days float64) string {
	return strconv.FormatFloat(days, 'g', -1, 64)
}

// daysDuration converts fractional days to a time.Duration.
func daysDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}

// MaskKey redacts a license key for logging, keeping only the first and
// last four characters.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
