// Command license-tool manages local licenses: RSA key pair generation,
// license key generation and validation, install/revoke, and trial status.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"allyinlic/internal/config"
	"allyinlic/internal/infrastructure"
	"allyinlic/internal/license"
	"allyinlic/internal/security"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if _, err := infrastructure.InitializeLogger(cfg.Logging); err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
	}
	defer infrastructure.CloseLogger()

	var runErr error
	switch os.Args[1] {
	case "keygen":
		runErr = runKeygen(os.Args[2:])
	case "generate":
		runErr = runGenerate(cfg, os.Args[2:])
	case "validate":
		runErr = runValidate(cfg, os.Args[2:])
	case "install":
		runErr = runInstall(cfg, os.Args[2:])
	case "status":
		runErr = runStatus(cfg, os.Args[2:])
	case "trial":
		runErr = runTrial(cfg, os.Args[2:])
	case "revoke":
		runErr = runRevoke(cfg, os.Args[2:])
	case "fingerprint":
		runErr = runFingerprint(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: license-tool <command> [flags]

Commands:
  keygen       generate an RSA key pair for license signing
  generate     generate a license key for a customer
  validate     validate a license key string
  install      validate and install a license key
  status       show the installed license status
  trial        show trial status for a user or this machine
  revoke       remove the installed license
  fingerprint  print this machine's identifier and fingerprint`)
}

// newManager builds a license manager from config plus per-command overrides.
func newManager(cfg *config.Config, dataDir string) (*license.Manager, error) {
	var secret []byte
	if cfg.License.SecretKey != "" {
		secret = []byte(cfg.License.SecretKey)
	}
	return license.NewManager(license.Options{
		ProductID:         cfg.License.ProductID,
		TrialDays:         cfg.License.TrialDays,
		UserID:            cfg.License.UserID,
		SecretKey:         secret,
		RSAPrivateKeyPath: cfg.License.RSAPrivateKeyPath,
		RSAPublicKeyPath:  cfg.License.RSAPublicKeyPath,
		LicenseFile:       cfg.License.LicenseFile,
		DataDir:           dataDir,
	})
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	privatePath := fs.String("private", "private_key.pem", "output path for the private key")
	publicPath := fs.String("public", "public_key.pem", "output path for the public key")
	bits := fs.Int("bits", 2048, "RSA key size in bits")
	fs.Parse(args)

	key, err := security.GenerateRSAKeyPair(*bits)
	if err != nil {
		return err
	}
	if err := security.SaveRSAKeyPair(key, *privatePath, *publicPath); err != nil {
		return err
	}
	fmt.Printf("RSA key pair generated (%s):\n  Private: %s\n  Public:  %s\n",
		security.FormatKeyFingerprint(&key.PublicKey), *privatePath, *publicPath)
	return nil
}

func runGenerate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	customer := fs.String("customer", "", "customer identifier (required)")
	days := fs.Float64("days", 30, "license duration in days (fractional allowed)")
	licenseType := fs.String("type", "trial", "license type: trial|paid|basic|pro|enterprise")
	sigtype := fs.String("sig", "hmac", "signature type: hmac|rsa")
	dataDir := fs.String("data-dir", "", "override license data directory")
	fs.Parse(args)

	if *customer == "" {
		return fmt.Errorf("generate: -customer is required")
	}
	manager, err := newManager(cfg, *dataDir)
	if err != nil {
		return err
	}
	key, record, err := manager.GenerateKey(*customer, *days, *licenseType, *sigtype)
	if err != nil {
		return err
	}
	fmt.Println(key)
	slog.Info("license key generated",
		slog.String("customer_id", record.CustomerID),
		slog.String("end_date", record.EndDate),
	)
	return nil
}

func runValidate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	key := fs.String("key", "", "license key to validate (required)")
	dataDir := fs.String("data-dir", "", "override license data directory")
	fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("validate: -key is required")
	}
	manager, err := newManager(cfg, *dataDir)
	if err != nil {
		return err
	}
	ok, record, reason := manager.ValidateKey(*key)
	if !ok {
		return fmt.Errorf("invalid: %s", reason)
	}
	fmt.Printf("valid: customer=%s type=%s expires=%s\n",
		record.CustomerID, record.LicenseType, record.EndDate)
	return nil
}

func runInstall(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	key := fs.String("key", "", "license key to install (required)")
	dataDir := fs.String("data-dir", "", "override license data directory")
	fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("install: -key is required")
	}
	manager, err := newManager(cfg, *dataDir)
	if err != nil {
		return err
	}
	ok, message := manager.Install(*key)
	if !ok {
		return fmt.Errorf("install failed: %s", message)
	}
	fmt.Println(message)
	return nil
}

func runStatus(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "override license data directory")
	fs.Parse(args)

	manager, err := newManager(cfg, *dataDir)
	if err != nil {
		return err
	}
	ok, record, reason := manager.IsLicenseValid()
	if !ok {
		fmt.Printf("no valid license: %s\n", reason)
		return nil
	}
	fmt.Printf("license valid: customer=%s type=%s expires=%s days_remaining=%d\n",
		record.CustomerID, record.LicenseType, record.EndDate, manager.DaysRemaining())
	return nil
}

func runTrial(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("trial", flag.ExitOnError)
	user := fs.String("user", "", "user identifier for per-user trials")
	dataDir := fs.String("data-dir", "", "override license data directory")
	fs.Parse(args)

	manager, err := newManager(cfg, *dataDir)
	if err != nil {
		return err
	}
	status, reason := manager.TrialStatus(*user)
	if status == nil {
		fmt.Println(reason)
		return nil
	}
	fmt.Printf("trial: started=%s elapsed=%.3f days remaining=%.3f days expired=%v\n",
		status.FirstInstallDate.Format("2006-01-02 15:04:05"),
		status.DaysElapsed, status.DaysRemaining, status.IsTrialExpired)
	return nil
}

func runRevoke(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "override license data directory")
	fs.Parse(args)

	manager, err := newManager(cfg, *dataDir)
	if err != nil {
		return err
	}
	_, message := manager.Revoke()
	fmt.Println(message)
	return nil
}

func runFingerprint(args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	fs.Parse(args)

	generator := security.NewGenerator()
	fmt.Printf("machine_id: %s\n", generator.MachineID())
	fingerprint, err := generator.FullFingerprint()
	if err != nil {
		return err
	}
	fmt.Printf("fingerprint: %s\n", fingerprint)
	return nil
}
