package daemon

import (
	"fmt"
	"os"
)

// ConfigReadable verifies the config file can be opened by the current
// user. The service runs under this account, so an unreadable config is
// caught at install time instead of crash-looping at login.
func ConfigReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("daemon: config file is not readable: %w", err)
	}
	f.Close()
	return nil
}
