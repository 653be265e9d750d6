package license

import (
	"fmt"
	"os"
)

// osExit is indirected so tests can observe the hard stop.
var osExit = os.Exit

// RequireLicense wraps fn with an entitlement check. Access is granted when
// the license is valid or the trial has not expired; on denial it prints an
// operator-facing message and terminates the process with a non-zero exit.
//
// The hard stop is the point: a recoverable error could be swallowed by a
// caller, which would make the enforcement bypassable. This suits CLI entry
// points, not library code.
func RequireLicense(m *Manager, message string, fn func() error) func() error {
	return func() error {
		status := m.CheckAccess()
		if !status.HasAccess {
			if message == "" {
				message = fmt.Sprintf(
					"Your trial for %q has expired or your license is invalid. Please contact support or purchase a license.",
					m.ProductID(),
				)
			}
			fmt.Fprintln(os.Stderr, message)
			osExit(1)
			return nil
		}
		return fn()
	}
}
