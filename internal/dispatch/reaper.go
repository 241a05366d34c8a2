package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReaperConfig holds configuration for the reaper.
type ReaperConfig struct {
	Logger *slog.Logger
	// OnReap, if set, is called for every collected child.
	OnReap func(pid int, status unix.WaitStatus)
}

// Reaper collects terminated children in the background. It shares nothing
// with the event loop; the kernel's process table is the only coupling.
//
// Reaping uses wait4(-1), so no other code in the process may wait on
// specific children once a Reaper is running.
type Reaper struct {
	logger *slog.Logger
	onReap func(pid int, status unix.WaitStatus)
	sigCh  chan os.Signal
}

// NewReaper subscribes to SIGCHLD immediately so that children spawned
// before Run is scheduled are not missed.
func NewReaper(cfg ReaperConfig) *Reaper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		logger: logger,
		onReap: cfg.OnReap,
		sigCh:  make(chan os.Signal, 1),
	}
	signal.Notify(r.sigCh, syscall.SIGCHLD)
	return r
}

// Run drains exited children on every SIGCHLD until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	defer signal.Stop(r.sigCh)

	r.Drain()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.sigCh:
			r.Drain()
		}
	}
}

// Drain collects every child that has already exited and returns how many
// were reaped. It never blocks.
func (r *Reaper) Drain() int {
	n := 0
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			if err != nil && !errors.Is(err, unix.ECHILD) {
				r.logger.Warn("wait4 failed", "error", err)
			}
			return n
		}
		n++
		r.logger.Debug("child reaped", "pid", pid, "exit_status", status.ExitStatus(), "signaled", status.Signaled())
		if r.onReap != nil {
			r.onReap(pid, status)
		}
	}
}
