package security

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	licerrors "allyinlic/internal/errors"
)

// MaxPeriodDays caps trial periods and license durations at 100 years.
const MaxPeriodDays = 36500

// MaxIdentifierLength caps product and customer identifiers.
const MaxIdentifierLength = 255

// unsafeIdentifierChars are rejected in identifiers because they are unsafe
// in file names on at least one supported platform.
const unsafeIdentifierChars = "<>:\"|?*\\/\x00"

// productIDPattern is the permissive-but-safe charset for product IDs.
var productIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._\-@#$%^&()\[\]{}]+$`)

// windowsReservedNames are device names that cannot be used as file names.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ValidateProductID checks product ID format and content, returning the
// trimmed identifier.
func ValidateProductID(productID string) (string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return "", licerrors.InvalidProduct("product ID cannot be empty")
	}
	if len(productID) > MaxIdentifierLength {
		return "", licerrors.InvalidProduct("product ID cannot exceed %d characters", MaxIdentifierLength)
	}
	if i := strings.IndexAny(productID, unsafeIdentifierChars); i >= 0 {
		return "", licerrors.InvalidProduct("product ID cannot contain %q", productID[i])
	}
	if windowsReservedNames[strings.ToUpper(productID)] {
		return "", licerrors.InvalidProduct("product ID cannot be reserved name: %s", productID)
	}
	if !productIDPattern.MatchString(productID) {
		return "", licerrors.InvalidProduct("product ID contains invalid characters")
	}
	return productID, nil
}

// ValidateCustomerID checks customer ID format and content, returning the
// trimmed identifier. Customer IDs allow a wider charset than product IDs
// because they never become file names on their own.
func ValidateCustomerID(customerID string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", licerrors.InvalidCustomer("customer ID cannot be empty")
	}
	if len(customerID) > MaxIdentifierLength {
		return "", licerrors.InvalidCustomer("customer ID cannot exceed %d characters", MaxIdentifierLength)
	}
	if i := strings.IndexAny(customerID, unsafeIdentifierChars); i >= 0 {
		return "", licerrors.InvalidCustomer("customer ID cannot contain %q", customerID[i])
	}
	return customerID, nil
}

// ValidateTrialPeriod checks a trial period in days. Fractional values are
// allowed for sub-day trials; the period must be strictly positive.
func ValidateTrialPeriod(trialDays float64) (float64, error) {
	if math.IsNaN(trialDays) || math.IsInf(trialDays, 0) {
		return 0, licerrors.InvalidTrialPeriod("trial days must be a finite number")
	}
	if trialDays <= 0 {
		return 0, licerrors.InvalidTrialPeriod("trial days must be greater than 0")
	}
	if trialDays > MaxPeriodDays {
		return 0, licerrors.InvalidTrialPeriod("trial days cannot exceed 100 years (%d days)", MaxPeriodDays)
	}
	return trialDays, nil
}

// ValidateLicenseDuration checks a license duration in days. Unlike trial
// periods, zero is allowed.
func ValidateLicenseDuration(days float64) (float64, error) {
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return 0, licerrors.InvalidTrialPeriod("license duration must be a finite number")
	}
	if days < 0 {
		return 0, licerrors.InvalidTrialPeriod("license duration cannot be negative")
	}
	if days > MaxPeriodDays {
		return 0, licerrors.InvalidTrialPeriod("license duration cannot exceed 100 years (%d days)", MaxPeriodDays)
	}
	return days, nil
}

// ValidLicenseTypes enumerates the accepted license tiers.
var ValidLicenseTypes = []string{"trial", "paid", "basic", "pro", "enterprise"}

// ValidateLicenseType checks and normalizes a license type to lowercase.
func ValidateLicenseType(licenseType string) (string, error) {
	if licenseType == "" {
		return "", fmt.Errorf("license type cannot be empty")
	}
	normalized := strings.ToLower(licenseType)
	for _, t := range ValidLicenseTypes {
		if normalized == t {
			return normalized, nil
		}
	}
	return "", fmt.Errorf("license type must be one of: %s", strings.Join(ValidLicenseTypes, ", "))
}

// ValidateSignatureType checks and normalizes a signature type to lowercase.
func ValidateSignatureType(sigtype string) (string, error) {
	if sigtype == "" {
		return "", fmt.Errorf("signature type cannot be empty")
	}
	normalized := strings.ToLower(sigtype)
	if normalized != string(SigTypeHMAC) && normalized != string(SigTypeRSA) {
		return "", fmt.Errorf("signature type must be one of: hmac, rsa")
	}
	return normalized, nil
}

// ValidateFilePath checks a license file path and creates its parent
// directory. An empty path is allowed and means "use the default location".
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.TrimSpace(path) == "" {
		return "", licerrors.LicenseFile(nil, "file path cannot be whitespace only")
	}
	// Path separators are legitimate here, unlike in identifiers.
	if i := strings.IndexAny(path, "<>\"|?*\x00"); i >= 0 {
		return "", licerrors.LicenseFile(nil, "file path cannot contain %q", path[i])
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", licerrors.LicenseFile(err, "cannot create directory for license file")
		}
	}
	return path, nil
}
