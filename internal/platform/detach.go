package platform

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// detachedEnv marks the re-executed background copy of the daemon.
const detachedEnv = "XINPUTD_DETACHED"

// ClaimDetached reports whether this process is the background copy started
// by Detach. The marker is removed from the environment so that it is not
// passed on to the user's command.
func ClaimDetached() bool {
	if os.Getenv(detachedEnv) != "1" {
		return false
	}
	os.Unsetenv(detachedEnv)
	return true
}

// Detach starts a copy of the running executable with args in a new session
// with stdin, stdout and stderr on /dev/null, and returns its pid. The
// caller is expected to exit right after.
func Detach(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to find executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), detachedEnv+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start background process: %w", err)
	}
	pid := cmd.Process.Pid
	cmd.Process.Release()
	return pid, nil
}
