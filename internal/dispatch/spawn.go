// Package dispatch runs the user's command for each accepted change and
// collects the children once they exit.
package dispatch

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

// ErrNoCommand is returned when no program was given to run.
var ErrNoCommand = errors.New("no command given")

// Spawner starts the configured command as a detached child. It never
// waits for the child; a Reaper collects it.
type Spawner struct {
	argv   []string
	logger *slog.Logger
}

// NewSpawner takes the program and its arguments verbatim.
func NewSpawner(argv []string, logger *slog.Logger) (*Spawner, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrNoCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{
		argv:   append([]string(nil), argv...),
		logger: logger,
	}, nil
}

// Command returns a copy of the argument vector.
func (s *Spawner) Command() []string {
	return append([]string(nil), s.argv...)
}

// Dispatch starts one run of the command and returns immediately. A start
// failure is logged and otherwise ignored.
func (s *Spawner) Dispatch() {
	pid, err := s.spawn()
	if err != nil {
		s.logger.Warn("command failed to start", "command", s.argv[0], "error", err)
		return
	}
	s.logger.Info("command started", "command", s.argv[0], "pid", pid)
}

func (s *Spawner) spawn() (int, error) {
	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// New session: the child keeps running after we exit and does not get
	// our terminal's signals.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// The Reaper owns the child from here on.
	if err := cmd.Process.Release(); err != nil {
		s.logger.Debug("release process handle", "pid", pid, "error", err)
	}
	return pid, nil
}
