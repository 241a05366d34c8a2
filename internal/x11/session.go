// Package x11 owns the display-server connection: it negotiates the XInput
// and RandR extensions, subscribes to hotplug notifications on the root
// window and hands every incoming packet back in raw form.
package x11

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"

	"github.com/1broseidon/xinputd/internal/event"
)

var (
	// ErrConnect means the display server could not be reached.
	ErrConnect = errors.New("cannot connect to X server")
	// ErrExtensionMissing means a required extension (or version) is absent.
	ErrExtensionMissing = errors.New("required X extension missing")
	// ErrSubscribe means the event selection could not be flushed.
	ErrSubscribe = errors.New("event subscription failed")
)

const randrExtName = "RANDR"

// Minimum protocol versions for the events xinputd selects.
const (
	xiMajor, xiMinor       = 2, 0
	randrMajor, randrMinor = 1, 2
)

// Options selects the display and which extensions to watch.
type Options struct {
	Display string
	Devices bool
	Outputs bool
	Logger  *slog.Logger
}

// Session is the single live connection to the X server.
type Session struct {
	nc      net.Conn
	xu      *xgbutil.XUtil
	root    xproto.Window
	offsets event.Offsets
	logger  *slog.Logger

	closeOnce sync.Once
}

// Negotiate connects to the display and verifies the requested extensions,
// recording their event codes. A missing extension is not retried.
func Negotiate(opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	xgb.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelDebug)
	xgbutil.Logger = xgb.Logger

	nc, addr, err := dialDisplay(opts.Display)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return negotiate(nc, addr.screen, opts, logger)
}

// negotiate runs the handshake and extension checks over an open socket.
// It owns nc from here on.
func negotiate(nc net.Conn, screen int, opts Options, logger *slog.Logger) (*Session, error) {
	installCapture()

	c, err := xgb.NewConnNet(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if roots := len(xproto.Setup(c).Roots); screen >= roots {
		nc.Close()
		return nil, fmt.Errorf("%w: screen %d out of range (%d screens)", ErrConnect, screen, roots)
	}
	c.DefaultScreen = screen

	xu, err := xgbutil.NewConnXgb(c)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	s := &Session{
		nc:     nc,
		xu:     xu,
		root:   xu.RootWin(),
		logger: logger,
	}

	if opts.Devices {
		if err := s.negotiateInput(); err != nil {
			s.Close()
			return nil, err
		}
	}
	if opts.Outputs {
		if err := s.negotiateOutput(); err != nil {
			s.Close()
			return nil, err
		}
	}

	logger.Debug("negotiated extensions",
		"input", s.offsets.InputEnabled,
		"input_opcode", s.offsets.InputOpcode,
		"input_first_event", s.offsets.InputFirstEvent,
		"output", s.offsets.OutputEnabled,
		"output_first_event", s.offsets.OutputFirstEvent)

	return s, nil
}

func (s *Session) conn() *xgb.Conn {
	return s.xu.Conn()
}

func (s *Session) negotiateInput() error {
	ext, err := queryExtension(s.conn(), xinputExtName)
	if err != nil {
		return err
	}
	registerXInput(s.conn(), ext.MajorOpcode)

	ver, err := xiQueryVersion(s.conn(), xiMajor, xiMinor).Reply()
	if err != nil {
		return fmt.Errorf("XIQueryVersion: %w", err)
	}
	if ver == nil || ver.MajorVersion < xiMajor {
		return fmt.Errorf("%w: %s 2.0 not supported by server", ErrExtensionMissing, xinputExtName)
	}

	s.offsets.InputEnabled = true
	s.offsets.InputOpcode = ext.MajorOpcode
	s.offsets.InputFirstEvent = ext.FirstEvent
	return nil
}

func (s *Session) negotiateOutput() error {
	ext, err := queryExtension(s.conn(), randrExtName)
	if err != nil {
		return err
	}
	if err := randr.Init(s.conn()); err != nil {
		return fmt.Errorf("randr init failed: %w", err)
	}

	ver, err := randr.QueryVersion(s.conn(), randrMajor, randrMinor).Reply()
	if err != nil {
		return fmt.Errorf("RRQueryVersion: %w", err)
	}
	if ver.MajorVersion < randrMajor || (ver.MajorVersion == randrMajor && ver.MinorVersion < randrMinor) {
		return fmt.Errorf("%w: %s %d.%d not supported by server (have %d.%d)",
			ErrExtensionMissing, randrExtName, randrMajor, randrMinor, ver.MajorVersion, ver.MinorVersion)
	}

	s.offsets.OutputEnabled = true
	s.offsets.OutputFirstEvent = ext.FirstEvent
	return nil
}

func queryExtension(c *xgb.Conn, name string) (*xproto.QueryExtensionReply, error) {
	reply, err := xproto.QueryExtension(c, uint16(len(name)), name).Reply()
	if err != nil {
		return nil, fmt.Errorf("query extension %s: %w", name, err)
	}
	if !reply.Present {
		return nil, fmt.Errorf("%w: %s", ErrExtensionMissing, name)
	}
	return reply, nil
}

// Offsets returns the extension codes recorded by Negotiate.
func (s *Session) Offsets() event.Offsets {
	return s.offsets
}

// Root is the root window of the default screen.
func (s *Session) Root() xproto.Window {
	return s.root
}

// Subscribe selects device-changed events for all devices and output-change
// events on the root window, then waits for a round trip so both requests
// are known to have reached the server before the caller starts waiting for
// events.
func (s *Session) Subscribe() error {
	c := s.conn()

	if s.offsets.InputEnabled {
		xiSelectEvents(c, s.root, []xiEventMask{{
			DeviceID: XIAllDevices,
			Mask:     []uint32{XIDeviceChangedMask},
		}})
	}
	if s.offsets.OutputEnabled {
		randr.SelectInput(c, s.root, randr.NotifyMaskOutputChange)
	}

	if _, err := xproto.GetInputFocus(c).Reply(); err != nil {
		return fmt.Errorf("%w: %v", ErrSubscribe, err)
	}
	return nil
}

// WaitForEvent blocks for the next packet from the server. It returns
// io.EOF once the connection has been closed or lost.
func (s *Session) WaitForEvent() (event.RawEvent, error) {
	ev, xerr := s.conn().WaitForEvent()
	switch {
	case ev == nil && xerr == nil:
		return event.RawEvent{}, io.EOF
	case xerr != nil:
		return rawError(xerr), nil
	default:
		return rawEvent(ev), nil
	}
}

// Close drops the socket. xgb notices the read error and shuts itself down,
// and a blocked WaitForEvent returns io.EOF. No request may be issued once
// Close has been called.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.nc.Close()
	})
	return err
}
