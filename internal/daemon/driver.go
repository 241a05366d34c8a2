// Package daemon drives xinputd's lifecycle: negotiate, subscribe, then
// classify, debounce and dispatch events until the connection ends.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/1broseidon/xinputd/internal/event"
)

// ErrConnectionLost is returned by Run when the event stream ends without
// a shutdown having been requested.
var ErrConnectionLost = errors.New("connection to X server lost")

// State is a step of the driver's lifecycle.
type State int

const (
	Initializing State = iota
	Negotiating
	Subscribing
	Running
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Negotiating:
		return "negotiating"
	case Subscribing:
		return "subscribing"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the display connection as the driver sees it.
type Session interface {
	Offsets() event.Offsets
	Subscribe() error
	// WaitForEvent blocks for the next packet and returns io.EOF when the
	// stream has ended.
	WaitForEvent() (event.RawEvent, error)
	Close() error
}

// Negotiator opens and negotiates a Session.
type Negotiator func() (Session, error)

// Dispatcher runs the external command. Dispatch must not block.
type Dispatcher interface {
	Dispatch()
}

// Config holds configuration for the driver.
type Config struct {
	Negotiate  Negotiator
	Dispatcher Dispatcher
	// RunOnStart dispatches once after subscribing, before the first event.
	RunOnStart bool
	Logger     *slog.Logger
	// OnState, if set, observes every state transition.
	OnState func(State)
}

// Driver owns the session and the debounce state. Everything except
// shutdown requests happens on the goroutine that calls Run.
type Driver struct {
	negotiate  Negotiator
	dispatcher Dispatcher
	runOnStart bool
	logger     *slog.Logger
	onState    func(State)

	mu       sync.Mutex
	state    State
	session  Session
	stopping bool

	debounce event.DebounceState
}

// NewDriver creates a driver in the Initializing state.
func NewDriver(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		negotiate:  cfg.Negotiate,
		dispatcher: cfg.Dispatcher,
		runOnStart: cfg.RunOnStart,
		logger:     logger,
		onState:    cfg.OnState,
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()

	d.logger.Debug("state", "state", s.String())
	if d.onState != nil {
		d.onState(s)
	}
}

// Run performs the startup sequence and then processes events until the
// stream ends. Cancelling ctx closes the session, which ends the stream;
// Run then returns nil. A startup failure is returned as is, and losing the
// connection otherwise returns ErrConnectionLost.
func (d *Driver) Run(ctx context.Context) error {
	d.setState(Negotiating)
	session, err := d.negotiate()
	if err != nil {
		d.setState(ShuttingDown)
		return fmt.Errorf("negotiate: %w", err)
	}
	defer session.Close()

	if d.halted(ctx) {
		d.setState(ShuttingDown)
		return nil
	}

	d.setState(Subscribing)
	if err := session.Subscribe(); err != nil {
		d.setState(ShuttingDown)
		return fmt.Errorf("subscribe: %w", err)
	}

	// Stop only closes the session once it is published here, so no
	// request is ever in flight when the connection goes away.
	d.mu.Lock()
	stopped := d.stopping
	if !stopped {
		d.session = session
	}
	d.mu.Unlock()
	if stopped {
		d.setState(ShuttingDown)
		return nil
	}

	stop := context.AfterFunc(ctx, d.Stop)
	defer stop()

	d.setState(Running)
	d.logger.Info("watching for hotplug events")
	if d.runOnStart && !d.halted(ctx) {
		d.dispatcher.Dispatch()
	}

	offsets := session.Offsets()
	for {
		raw, err := session.WaitForEvent()
		if err != nil {
			d.setState(ShuttingDown)
			if d.stopRequested() {
				d.logger.Info("event loop stopped")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrConnectionLost
			}
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		d.handle(offsets, raw)
	}
}

// handle runs one packet through classification, debounce and dispatch.
func (d *Driver) handle(offsets event.Offsets, raw event.RawEvent) {
	ev := event.Classify(offsets, raw)

	accepted, next := event.Accept(ev, d.debounce)
	d.debounce = next

	switch {
	case accepted:
		d.logger.Info("change detected", "event", ev.String())
		d.dispatcher.Dispatch()
	case ev.Kind == event.ProtocolError:
		d.logger.Warn("X protocol error", "code", ev.Code)
	case ev.Kind == event.DisplayChanged:
		d.logger.Debug("duplicate display change ignored", "time", ev.Timestamp)
	default:
		d.logger.Debug("event ignored", "event", ev.String())
	}
}

// Stop requests shutdown. Once the driver is running it closes the session;
// earlier it only keeps startup from going further. It is safe to call from
// any goroutine and before or after Run.
func (d *Driver) Stop() {
	d.mu.Lock()
	d.stopping = true
	session := d.session
	d.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

// halted reports a shutdown request made through ctx or Stop.
func (d *Driver) halted(ctx context.Context) bool {
	return ctx.Err() != nil || d.stopRequested()
}

func (d *Driver) stopRequested() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopping
}
