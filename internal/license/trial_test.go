package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrialStatusPerUser(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	m := newTestManager(t, Options{TrialDays: 30, Clock: func() time.Time { return current }})

	status, reason := m.TrialStatus("alice")
	require.NotNil(t, status)
	assert.Empty(t, reason)
	assert.InDelta(t, 0.0, status.DaysElapsed, 1e-9)
	assert.InDelta(t, 30.0, status.DaysRemaining, 1e-9)
	assert.False(t, status.IsTrialExpired)

	// Twelve hours in: fractional-day accounting, no whole-day rounding.
	current = current.Add(12 * time.Hour)
	status, _ = m.TrialStatus("alice")
	require.NotNil(t, status)
	assert.InDelta(t, 0.5, status.DaysElapsed, 1e-6)
	assert.InDelta(t, 29.5, status.DaysRemaining, 1e-6)
	assert.False(t, status.IsTrialExpired)
}

func TestTrialStatusSubDayTrialExpires(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	// 0.001 days is 86.4 seconds.
	m := newTestManager(t, Options{TrialDays: 0.001, Clock: func() time.Time { return current }})

	status, _ := m.TrialStatus("alice")
	require.NotNil(t, status)
	assert.False(t, status.IsTrialExpired)

	current = current.Add(90 * time.Second)
	status, _ = m.TrialStatus("alice")
	require.NotNil(t, status)
	assert.True(t, status.IsTrialExpired)
	assert.Zero(t, status.DaysRemaining)
}

func TestTrialFirstInstallDateIsImmutable(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	started := current
	m := newTestManager(t, Options{Clock: func() time.Time { return current }})

	status, _ := m.TrialStatus("alice")
	require.NotNil(t, status)
	assert.WithinDuration(t, started, status.FirstInstallDate, time.Second)

	// A later rewrite of the entry must not restart the trial.
	current = current.Add(10 * 24 * time.Hour)
	m.setUserTrialInfo("alice", TrialRecord{
		UserID:           "alice",
		ProductID:        m.ProductID(),
		FirstInstallDate: current,
	})

	status, _ = m.TrialStatus("alice")
	require.NotNil(t, status)
	assert.WithinDuration(t, started, status.FirstInstallDate, time.Second)
	assert.InDelta(t, 10.0, status.DaysElapsed, 1e-6)
}

func TestTrialsAreTrackedPerUser(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	m := newTestManager(t, Options{Clock: func() time.Time { return current }})

	_, _ = m.TrialStatus("alice")
	current = current.Add(5 * 24 * time.Hour)
	_, _ = m.TrialStatus("bob")

	alice, _ := m.TrialStatus("alice")
	bob, _ := m.TrialStatus("bob")
	require.NotNil(t, alice)
	require.NotNil(t, bob)
	assert.InDelta(t, 5.0, alice.DaysElapsed, 1e-6)
	assert.InDelta(t, 0.0, bob.DaysElapsed, 1e-6)

	assert.Nil(t, m.UserTrialInfo("carol"))
}

func TestTrialStatusMachineWide(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	m := newTestManager(t, Options{Clock: func() time.Time { return current }})

	// Machine-wide mode never creates state on its own.
	status, reason := m.TrialStatus("")
	assert.Nil(t, status)
	assert.Equal(t, "No installation found", reason)
	assert.Nil(t, m.InstallationInfo())

	// The first license install writes the marker the machine trial runs on.
	key, _, err := m.GenerateKey("CUSTOMER1", 30, "paid", "hmac")
	require.NoError(t, err)
	ok, _ := m.Install(key)
	require.True(t, ok)

	current = current.Add(36 * time.Hour)
	status, reason = m.TrialStatus("")
	require.NotNil(t, status, "reason: %s", reason)
	assert.InDelta(t, 1.5, status.DaysElapsed, 1e-6)
}

func TestTrialStatusUsesConfiguredUser(t *testing.T) {
	m := newTestManager(t, Options{UserID: "configured-user"})

	status, _ := m.TrialStatus("")
	require.NotNil(t, status)
	assert.NotNil(t, m.UserTrialInfo("configured-user"))
}

func TestCheckAccess(t *testing.T) {
	t.Run("fresh trial grants access", func(t *testing.T) {
		m := newTestManager(t, Options{UserID: "alice"})
		status := m.CheckAccess()
		assert.True(t, status.HasAccess)
		assert.False(t, status.LicenseValid)
		require.NotNil(t, status.Trial)
		assert.False(t, status.Trial.IsTrialExpired)
	})

	t.Run("expired trial denies access", func(t *testing.T) {
		current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
		m := newTestManager(t, Options{UserID: "alice", TrialDays: 0.001, Clock: func() time.Time { return current }})
		_ = m.CheckAccess()

		current = current.Add(time.Hour)
		status := m.CheckAccess()
		assert.False(t, status.HasAccess)
		assert.Equal(t, "No license found", status.LicenseReason)
		require.NotNil(t, status.Trial)
		assert.True(t, status.Trial.IsTrialExpired)
	})

	t.Run("valid license grants access past trial", func(t *testing.T) {
		current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
		m := newTestManager(t, Options{UserID: "alice", TrialDays: 0.001, Clock: func() time.Time { return current }})

		key, _, err := m.GenerateKey("CUSTOMER1", 30, "paid", "hmac")
		require.NoError(t, err)
		ok, _ := m.Install(key)
		require.True(t, ok)

		current = current.Add(24 * time.Hour)
		status := m.CheckAccess()
		assert.True(t, status.HasAccess)
		assert.True(t, status.LicenseValid)
		assert.Equal(t, 29, status.DaysRemaining)
	})

	t.Run("no license and no trial denies access", func(t *testing.T) {
		// No user configured and nothing installed: machine-wide trial has no
		// marker to run on.
		m := newTestManager(t, Options{})
		status := m.CheckAccess()
		assert.False(t, status.HasAccess)
		assert.Nil(t, status.Trial)
	})
}
