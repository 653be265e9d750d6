package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Default file names inside the data directory. The manager owns these three
// files exclusively; nothing else in the system writes them directly.
const (
	LicenseFileName      = "license.dat"
	InstallationFileName = "installation.dat"
	TrialsFileName       = "trials.dat"
)

// Paths resolves the per-OS application data directory and the license
// state files inside it.
type Paths struct {
	DataDir          string
	LicenseFile      string
	InstallationFile string
	TrialsFile       string
}

// GetPaths resolves the platform-appropriate data directory:
// %APPDATA%\AllyIn\Licensing on Windows,
// ~/Library/Application Support/AllyIn/Licensing on macOS,
// ~/.allyin/licensing elsewhere.
func GetPaths() (*Paths, error) {
	dataDir, err := dataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return NewPaths(dataDir), nil
}

// NewPaths builds a Paths rooted at an explicit data directory. Used by
// tests and by deployments that relocate license state.
func NewPaths(dataDir string) *Paths {
	return &Paths{
		DataDir:          dataDir,
		LicenseFile:      filepath.Join(dataDir, LicenseFileName),
		InstallationFile: filepath.Join(dataDir, InstallationFileName),
		TrialsFile:       filepath.Join(dataDir, TrialsFileName),
	}
}

// EnsureDirectories creates the data directory if it does not exist.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", p.DataDir, err)
	}
	return nil
}

func dataDirectory() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "AllyIn", "Licensing"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "AllyIn", "Licensing"), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".allyin", "licensing"), nil
	}
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
