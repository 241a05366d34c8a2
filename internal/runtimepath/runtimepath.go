package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir returns the runtime directory for xinputd's PID file. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// 3) /tmp/xinputd-runtime-<uid> (created)
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/xinputd-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// PIDFilePath returns the PID file path for the given display. Each display
// gets its own file so one daemon per X server can run side by side.
func PIDFilePath(display string) (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "xinputd"+displaySuffix(display)+".pid"), nil
}

// displaySuffix turns ":0" or "host:1.0" into "-0" or "-host-1.0".
func displaySuffix(display string) string {
	if display == "" {
		return ""
	}
	out := make([]rune, 0, len(display)+1)
	out = append(out, '-')
	for _, r := range display {
		switch {
		case r == ':' || r == '/':
			if out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
