// Command xinputd runs a command whenever an input device is attached or
// detached, or a monitor is connected or disconnected, on an X display.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/xinputd/internal/config"
	"github.com/1broseidon/xinputd/internal/daemon"
	"github.com/1broseidon/xinputd/internal/dispatch"
	"github.com/1broseidon/xinputd/internal/platform"
	"github.com/1broseidon/xinputd/internal/runtimepath"
	"github.com/1broseidon/xinputd/internal/x11"
)

const name = "xinputd"

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	opts, code, ok := parseArgs(args, stderr)
	if !ok {
		return code
	}

	if err := platform.CheckPrivileges(); err != nil {
		return fatal(stderr, err)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fatal(stderr, err)
	}

	detached := platform.ClaimDetached()
	if !opts.foreground && !detached {
		if _, err := platform.Detach(args); err != nil {
			return fatal(stderr, err)
		}
		return 0
	}

	logger, closeLog, err := newLogger(cfg, stderr)
	if err != nil {
		return fatal(stderr, err)
	}
	defer closeLog()

	if detached && cfg.PIDFile {
		if path, err := runtimepath.PIDFilePath(cfg.Display); err != nil {
			logger.Warn("no pid file", "error", err)
		} else if err := platform.WritePIDFile(path); err != nil {
			logger.Warn("no pid file", "error", err)
		} else {
			defer platform.RemovePIDFile(path)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper := dispatch.NewReaper(dispatch.ReaperConfig{Logger: logger})
	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()
	go reaper.Run(reaperCtx)

	spawner, err := dispatch.NewSpawner(opts.command, logger)
	if err != nil {
		return fatal(stderr, err)
	}

	driver := daemon.NewDriver(daemon.Config{
		Negotiate: func() (daemon.Session, error) {
			s, err := x11.Negotiate(x11.Options{
				Display: cfg.Display,
				Devices: cfg.WatchDevices,
				Outputs: cfg.WatchOutputs,
				Logger:  logger,
			})
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Dispatcher: spawner,
		RunOnStart: cfg.RunOnStart,
		Logger:     logger,
	})

	logger.Info("xinputd starting", "command", opts.command, "display", cfg.Display, "detached", detached)
	if err := driver.Run(ctx); err != nil {
		return failed(logger, cfg, stderr, err)
	}
	logger.Info("xinputd stopped")
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// failed reports a runtime failure. Without a log file the logger shares
// stderr with the diagnostic, so only the diagnostic is written.
func failed(logger *slog.Logger, cfg *config.Config, stderr io.Writer, err error) int {
	if cfg.LogFile != "" {
		logger.Error("xinputd stopped", "error", err)
	}
	return fatal(stderr, err)
}

// fatal prints a one-line diagnostic and returns the failure status.
func fatal(w io.Writer, err error) int {
	fmt.Fprintf(w, "%s: %v\n", name, err)
	return 1
}

