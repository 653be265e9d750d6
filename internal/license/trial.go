package license

import (
	"context"
	"log/slog"
	"time"
)

const secondsPerDay = 86400.0

// InstallationRecord marks the first install on a machine. It is written at
// most once and never overwritten afterwards.
type InstallationRecord struct {
	FirstInstallDate time.Time `json:"first_install_date"`
	MachineID        string    `json:"machine_id"`
	ProductID        string    `json:"product_id"`
}

// TrialRecord is one user's trial entry in the per-product trial table.
// FirstInstallDate is immutable once set.
type TrialRecord struct {
	UserID           string    `json:"user_id"`
	ProductID        string    `json:"product_id"`
	FirstInstallDate time.Time `json:"first_install_date"`
}

// TrialStatus reports trial-period accounting with fractional-day precision.
type TrialStatus struct {
	FirstInstallDate time.Time `json:"first_install_date"`
	DaysElapsed      float64   `json:"days_elapsed"`
	TrialDays        float64   `json:"trial_days"`
	DaysRemaining    float64   `json:"days_remaining"`
	IsTrialExpired   bool      `json:"is_trial_expired"`
}

// TrialStatus returns trial accounting for userID, or for this machine when
// userID is empty and no manager-level user is configured.
//
// Per-user mode creates the trial entry lazily on first call. Machine-wide
// mode never creates state: it reads the installation marker written by the
// first license install and returns a "No installation found" reason when
// none exists. The two modes deliberately differ in shape, matching the
// manager's external contract: per-user always yields a status, machine-wide
// may yield (nil, reason).
func (m *Manager) TrialStatus(userID string) (*TrialStatus, string) {
	if userID == "" {
		userID = m.userID
	}
	if userID != "" {
		return m.userTrialStatus(userID), ""
	}

	installation := m.InstallationInfo()
	if installation == nil {
		return nil, "No installation found"
	}
	return m.trialStatusSince(installation.FirstInstallDate), ""
}

// InstallationInfo returns the machine-wide installation marker, or nil
// when none is readable.
func (m *Manager) InstallationInfo() *InstallationRecord {
	var record InstallationRecord
	if !m.store.Load(m.installationFile, &record) {
		return nil
	}
	return &record
}

// UserTrialInfo returns the stored trial entry for userID, or nil.
func (m *Manager) UserTrialInfo(userID string) *TrialRecord {
	trials := m.loadTrials()
	if record, found := trials[userID]; found {
		return &record
	}
	return nil
}

func (m *Manager) userTrialStatus(userID string) *TrialStatus {
	info := m.UserTrialInfo(userID)
	if info == nil {
		record := TrialRecord{
			UserID:           userID,
			ProductID:        m.productID,
			FirstInstallDate: m.clock(),
		}
		m.setUserTrialInfo(userID, record)
		// Re-read so a concurrent creation in another goroutine still
		// yields the winning first_install_date.
		info = m.UserTrialInfo(userID)
		if info == nil {
			info = &record
		}
		m.logger.Info("trial started",
			slog.String("user_id", userID),
			slog.Time("first_install_date", info.FirstInstallDate),
		)
	}
	status := m.trialStatusSince(info.FirstInstallDate)
	m.metrics.recordTrialCheck(context.Background(), status.IsTrialExpired)
	return status
}

func (m *Manager) trialStatusSince(firstInstall time.Time) *TrialStatus {
	elapsedDays := m.clock().Sub(firstInstall).Seconds() / secondsPerDay
	remaining := m.trialDays - elapsedDays
	if remaining < 0 {
		remaining = 0
	}
	return &TrialStatus{
		FirstInstallDate: firstInstall,
		DaysElapsed:      elapsedDays,
		TrialDays:        m.trialDays,
		DaysRemaining:    remaining,
		IsTrialExpired:   elapsedDays >= m.trialDays,
	}
}

// loadTrials reads the whole trial table. Missing or undecryptable state
// reads as an empty table.
func (m *Manager) loadTrials() map[string]TrialRecord {
	trials := make(map[string]TrialRecord)
	m.store.Load(m.trialsFile, &trials)
	return trials
}

// setUserTrialInfo upserts one user's trial entry under the trials mutex.
// An existing first_install_date always wins: a trial cannot be restarted
// by rewriting the entry.
func (m *Manager) setUserTrialInfo(userID string, record TrialRecord) {
	m.trialsMu.Lock()
	defer m.trialsMu.Unlock()

	trials := m.loadTrials()
	if existing, found := trials[userID]; found && !existing.FirstInstallDate.IsZero() {
		record.FirstInstallDate = existing.FirstInstallDate
		m.logger.Debug("preserving existing trial start",
			slog.String("user_id", userID),
			slog.Time("first_install_date", existing.FirstInstallDate),
		)
	}
	trials[userID] = record
	if err := m.store.Save(m.trialsFile, trials); err != nil {
		m.logger.Error("failed to save trial table",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// AccessStatus summarizes entitlement: a valid license or an unexpired
// trial grants access.
type AccessStatus struct {
	HasAccess     bool           `json:"has_access"`
	LicenseValid  bool           `json:"license_valid"`
	LicenseReason string         `json:"license_reason,omitempty"`
	License       *LicenseRecord `json:"license,omitempty"`
	Trial         *TrialStatus   `json:"trial,omitempty"`
	DaysRemaining int            `json:"days_remaining"`
}

// CheckAccess evaluates current entitlement for the configured user.
func (m *Manager) CheckAccess() *AccessStatus {
	licenseValid, record, reason := m.IsLicenseValid()
	trial, _ := m.TrialStatus(m.userID)

	status := &AccessStatus{
		LicenseValid:  licenseValid,
		LicenseReason: reason,
		License:       record,
		Trial:         trial,
	}
	status.HasAccess = licenseValid || (trial != nil && !trial.IsTrialExpired)
	if licenseValid {
		status.DaysRemaining = m.DaysRemaining()
	}
	return status
}
