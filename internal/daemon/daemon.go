// Package daemon installs pulseguard as an OS-managed background service.
// Linux uses a systemd user unit, macOS a launchd agent; the service runs
// "pulseguard watch" supervised by the OS, so crashes restart it.
package daemon

import (
	"fmt"
	"os"
)

// ServiceName is the unit/agent name registered with the OS.
const ServiceName = "pulseguard"

// Manager controls the OS service for this binary.
type Manager interface {
	// Install writes the service definition and starts it. configPath,
	// when non-empty, is baked into the service's command line.
	Install(configPath string) error
	Uninstall() error
	Start() error
	Stop() error
	// Status returns a short human-readable state ("active", "inactive").
	Status() (string, error)
}

// executablePath resolves the running binary so the service definition
// points at the exact file the user invoked.
func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("daemon: resolve executable: %w", err)
	}
	return exe, nil
}
