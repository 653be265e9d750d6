package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName identifies this package's OpenTelemetry meter.
const MeterName = "allyinlic/license"

// Metrics holds the license-specific OpenTelemetry instruments. All manager
// recording paths are nil-safe, so deployments without a meter pipeline pay
// nothing.
type Metrics struct {
	KeyGenerations        metric.Int64Counter
	ValidationAttempts    metric.Int64Counter
	ValidationFailures    metric.Int64Counter
	ValidationDuration    metric.Float64Histogram
	TrialChecks           metric.Int64Counter
	TrialExpirations      metric.Int64Counter
	FingerprintMismatches metric.Int64Counter
}

// NewMetrics creates the license instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.KeyGenerations, err = meter.Int64Counter(
		"license_key_generations_total",
		metric.WithDescription("Total number of license keys generated"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create key generations counter: %w", err)
	}

	m.ValidationAttempts, err = meter.Int64Counter(
		"license_validation_attempts_total",
		metric.WithDescription("Total number of license key validation attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation attempts counter: %w", err)
	}

	m.ValidationFailures, err = meter.Int64Counter(
		"license_validation_failures_total",
		metric.WithDescription("Total number of failed license key validations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation failures counter: %w", err)
	}

	m.ValidationDuration, err = meter.Float64Histogram(
		"license_validation_duration_seconds",
		metric.WithDescription("License key validation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	m.TrialChecks, err = meter.Int64Counter(
		"license_trial_checks_total",
		metric.WithDescription("Total number of trial status checks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trial checks counter: %w", err)
	}

	m.TrialExpirations, err = meter.Int64Counter(
		"license_trial_expirations_total",
		metric.WithDescription("Total number of trial checks that found an expired trial"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trial expirations counter: %w", err)
	}

	m.FingerprintMismatches, err = meter.Int64Counter(
		"license_fingerprint_mismatches_total",
		metric.WithDescription("Total number of hardware fingerprint binding mismatches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint mismatches counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordKeyGeneration(ctx context.Context, sigtype string) {
	if m == nil {
		return
	}
	m.KeyGenerations.Add(ctx, 1, metric.WithAttributes(attribute.String("sigtype", sigtype)))
}

func (m *Metrics) recordValidation(ctx context.Context, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.ValidationAttempts.Add(ctx, 1)
	if !ok {
		m.ValidationFailures.Add(ctx, 1)
	}
	m.ValidationDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("valid", ok)))
}

func (m *Metrics) recordTrialCheck(ctx context.Context, expired bool) {
	if m == nil {
		return
	}
	m.TrialChecks.Add(ctx, 1)
	if expired {
		m.TrialExpirations.Add(ctx, 1)
	}
}

func (m *Metrics) recordFingerprintMismatch(ctx context.Context) {
	if m == nil {
		return
	}
	m.FingerprintMismatches.Add(ctx, 1)
}
