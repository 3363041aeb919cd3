//go:build linux

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// New returns the systemd-backed manager. The unit is installed per-user so
// no elevation is needed.
func New() (Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("daemon: resolve home: %w", err)
	}
	return &systemdManager{
		unitPath: filepath.Join(home, ".config", "systemd", "user", ServiceName+".service"),
	}, nil
}

type systemdManager struct {
	unitPath string
}

func (m *systemdManager) Install(configPath string) error {
	exe, err := executablePath()
	if err != nil {
		return err
	}

	execStart := exe + " watch"
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return fmt.Errorf("daemon: resolve config path: %w", err)
		}
		execStart += " --config " + abs
	}

	unit := fmt.Sprintf(`[Unit]
Description=pulseguard log and service monitor
After=network.target

[Service]
Type=simple
ExecStart=%s
Restart=always
RestartSec=10
StandardOutput=journal
StandardError=journal

[Install]
WantedBy=default.target
`, execStart)

	if err := os.MkdirAll(filepath.Dir(m.unitPath), 0o755); err != nil {
		return fmt.Errorf("daemon: create unit directory: %w", err)
	}
	if err := os.WriteFile(m.unitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("daemon: write unit file: %w", err)
	}

	if err := m.systemctl("daemon-reload"); err != nil {
		return err
	}
	if err := m.systemctl("enable", ServiceName); err != nil {
		return err
	}
	return m.systemctl("start", ServiceName)
}

func (m *systemdManager) Uninstall() error {
	m.systemctl("stop", ServiceName)
	m.systemctl("disable", ServiceName)
	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: remove unit file: %w", err)
	}
	return m.systemctl("daemon-reload")
}

func (m *systemdManager) Start() error {
	return m.systemctl("start", ServiceName)
}

func (m *systemdManager) Stop() error {
	return m.systemctl("stop", ServiceName)
}

func (m *systemdManager) Status() (string, error) {
	out, err := exec.Command("systemctl", "--user", "is-active", ServiceName).CombinedOutput()
	state := strings.TrimSpace(string(out))
	if state == "" && err != nil {
		return "", fmt.Errorf("daemon: systemctl is-active: %w", err)
	}
	// is-active exits non-zero for inactive units; the output still names
	// the state.
	return state, nil
}

func (m *systemdManager) systemctl(args ...string) error {
	full := append([]string{"--user"}, args...)
	out, err := exec.Command("systemctl", full...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("daemon: systemctl %s: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return nil
}
