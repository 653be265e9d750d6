// Package errors defines the error taxonomy for license operations.
//
// All licensing failures share one base type, LicenseError, discriminated by
// Kind. Callers can match broadly (errors.Is against ErrLicense) or narrowly
// (errors.Is against a kind sentinel such as ErrInvalidProduct).
//
// The split between raised and returned errors is deliberate: input
// validation and deployment misconfiguration surface as LicenseError values
// from the API boundary, while expected business outcomes (a pasted key that
// does not verify, an expired license) are reported as (ok, reason) results
// by the manager and never as errors.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies the failure category of a LicenseError.
type Kind string

const (
	KindInvalidProduct     Kind = "invalid_product"
	KindInvalidTrialPeriod Kind = "invalid_trial_period"
	KindInvalidCustomer    Kind = "invalid_customer"
	KindLicenseFile        Kind = "license_file"
	KindLicenseValidation  Kind = "license_validation"
	KindLicenseExpired     Kind = "license_expired"
	KindMachineBinding     Kind = "machine_binding"
	KindCryptographic      Kind = "cryptographic"
	KindConfiguration      Kind = "configuration"
)

// LicenseError is the base error type for the licensing system.
type LicenseError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *LicenseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *LicenseError) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels and the bare base sentinel.
func (e *LicenseError) Is(target error) bool {
	var le *LicenseError
	if !errors.As(target, &le) {
		return false
	}
	return le.Kind == "" || le.Kind == e.Kind
}

// Sentinels for errors.Is matching. ErrLicense matches every LicenseError.
var (
	ErrLicense            = &LicenseError{}
	ErrInvalidProduct     = &LicenseError{Kind: KindInvalidProduct}
	ErrInvalidTrialPeriod = &LicenseError{Kind: KindInvalidTrialPeriod}
	ErrInvalidCustomer    = &LicenseError{Kind: KindInvalidCustomer}
	ErrLicenseFile        = &LicenseError{Kind: KindLicenseFile}
	ErrLicenseValidation  = &LicenseError{Kind: KindLicenseValidation}
	ErrLicenseExpired     = &LicenseError{Kind: KindLicenseExpired}
	ErrMachineBinding     = &LicenseError{Kind: KindMachineBinding}
	ErrCryptographic      = &LicenseError{Kind: KindCryptographic}
	ErrConfiguration      = &LicenseError{Kind: KindConfiguration}
)

// New creates a LicenseError with the given kind and message.
func New(kind Kind, format string, args ...interface{}) *LicenseError {
	return &LicenseError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a LicenseError wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *LicenseError {
	return &LicenseError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// InvalidProduct reports a malformed or unusable product ID.
func InvalidProduct(format string, args ...interface{}) *LicenseError {
	return New(KindInvalidProduct, format, args...)
}

// InvalidTrialPeriod reports an out-of-range trial period or duration.
func InvalidTrialPeriod(format string, args ...interface{}) *LicenseError {
	return New(KindInvalidTrialPeriod, format, args...)
}

// InvalidCustomer reports a malformed customer ID.
func InvalidCustomer(format string, args ...interface{}) *LicenseError {
	return New(KindInvalidCustomer, format, args...)
}

// LicenseFile reports a failed file operation on license state.
func LicenseFile(err error, format string, args ...interface{}) *LicenseError {
	return Wrap(KindLicenseFile, err, format, args...)
}

// MachineBinding reports a fingerprinting or binding failure.
func MachineBinding(err error, format string, args ...interface{}) *LicenseError {
	return Wrap(KindMachineBinding, err, format, args...)
}

// Cryptographic reports a failed cryptographic operation.
func Cryptographic(err error, format string, args ...interface{}) *LicenseError {
	return Wrap(KindCryptographic, err, format, args...)
}

// Configuration reports a deployment misconfiguration. These are raised, not
// returned as results, because the caller must fix the deployment.
func Configuration(format string, args ...interface{}) *LicenseError {
	return New(KindConfiguration, format, args...)
}
