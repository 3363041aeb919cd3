//go:build darwin

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const launchdLabel = "com.pulseguard.agent"

// New returns the launchd-backed manager. The agent is installed per-user
// under ~/Library/LaunchAgents.
func New() (Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("daemon: resolve home: %w", err)
	}
	return &launchdManager{
		plistPath: filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"),
	}, nil
}

type launchdManager struct {
	plistPath string
}

func (m *launchdManager) Install(configPath string) error {
	exe, err := executablePath()
	if err != nil {
		return err
	}

	args := []string{exe, "watch"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return fmt.Errorf("daemon: resolve config path: %w", err)
		}
		args = append(args, "--config", abs)
	}

	var argXML strings.Builder
	for _, a := range args {
		fmt.Fprintf(&argXML, "        <string>%s</string>\n", a)
	}

	plist := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
%s    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`, launchdLabel, argXML.String())

	if err := os.MkdirAll(filepath.Dir(m.plistPath), 0o755); err != nil {
		return fmt.Errorf("daemon: create launch agents directory: %w", err)
	}
	if err := os.WriteFile(m.plistPath, []byte(plist), 0o644); err != nil {
		return fmt.Errorf("daemon: write plist: %w", err)
	}
	return m.launchctl("load", m.plistPath)
}

func (m *launchdManager) Uninstall() error {
	m.launchctl("unload", m.plistPath)
	if err := os.Remove(m.plistPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: remove plist: %w", err)
	}
	return nil
}

func (m *launchdManager) Start() error {
	return m.launchctl("load", m.plistPath)
}

func (m *launchdManager) Stop() error {
	return m.launchctl("unload", m.plistPath)
}

func (m *launchdManager) Status() (string, error) {
	out, err := exec.Command("launchctl", "list").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("daemon: launchctl list: %w", err)
	}
	if strings.Contains(string(out), launchdLabel) {
		return "active", nil
	}
	return "inactive", nil
}

func (m *launchdManager) launchctl(args ...string) error {
	out, err := exec.Command("launchctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("daemon: launchctl %s: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return nil
}
