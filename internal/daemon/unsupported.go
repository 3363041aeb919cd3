//go:build !linux && !darwin

package daemon

import (
	"fmt"
	"runtime"
)

// New reports that service management is unavailable on this platform. The
// watch command itself still works; only OS supervision is missing.
func New() (Manager, error) {
	return nil, fmt.Errorf("daemon: service management is not supported on %s", runtime.GOOS)
}
