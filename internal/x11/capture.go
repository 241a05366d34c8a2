package x11

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"

	"github.com/1broseidon/xinputd/internal/event"
)

// capturedEvent keeps the wire bytes of an event next to xgb's decoded form.
type capturedEvent struct {
	xgb.Event
	raw []byte
}

// capturedError does the same for errors delivered on the event stream.
type capturedError struct {
	err xgb.Error
	raw []byte
}

func (e capturedError) SequenceId() uint16 { return e.err.SequenceId() }
func (e capturedError) BadId() uint32      { return e.err.BadId() }
func (e capturedError) Error() string      { return e.err.Error() }

// genericEvent is an XGE packet. xgb has no constructor for response type
// 35, so without this the reader would drop XI2 events.
type genericEvent struct {
	raw []byte
}

func (e genericEvent) Bytes() []byte { return e.raw }

func (e genericEvent) String() string {
	return fmt.Sprintf("GenericEvent {Extension: %d, EventType: %d}",
		event.RawEvent{Data: e.raw}.Extension(), event.RawEvent{Data: e.raw}.EventType())
}

var (
	_ xgb.Event = capturedEvent{}
	_ xgb.Event = genericEvent{}
	_ xgb.Error = capturedError{}
)

var captureOnce sync.Once

// installCapture wraps xgb's process-wide constructor tables so every event
// and error handed to WaitForEvent still carries its raw packet. Extension
// tables are wrapped before their Init copies them into the live tables, so
// this must run before the first connection is opened.
func installCapture() {
	captureOnce.Do(func() {
		for num, fun := range xgb.NewEventFuncs {
			xgb.NewEventFuncs[num] = captureEventFun(fun)
		}
		for _, funs := range xgb.NewExtEventFuncs {
			for num, fun := range funs {
				funs[num] = captureEventFun(fun)
			}
		}
		xgb.NewEventFuncs[event.GenericEvent] = func(buf []byte) xgb.Event {
			return genericEvent{raw: clone(buf)}
		}

		for code, fun := range xgb.NewErrorFuncs {
			xgb.NewErrorFuncs[code] = captureErrorFun(fun)
		}
		for _, funs := range xgb.NewExtErrorFuncs {
			for code, fun := range funs {
				funs[code] = captureErrorFun(fun)
			}
		}
	})
}

func captureEventFun(fun xgb.NewEventFun) xgb.NewEventFun {
	return func(buf []byte) xgb.Event {
		return capturedEvent{Event: fun(buf), raw: clone(buf)}
	}
}

func captureErrorFun(fun xgb.NewErrorFun) xgb.NewErrorFun {
	return func(buf []byte) xgb.Error {
		return capturedError{err: fun(buf), raw: clone(buf)}
	}
}

func clone(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}

// rawEvent recovers the wire packet of an event returned by xgb.
func rawEvent(ev xgb.Event) event.RawEvent {
	switch e := ev.(type) {
	case capturedEvent:
		return event.RawEvent{Data: e.raw}
	case genericEvent:
		return event.RawEvent{Data: e.raw}
	default:
		return event.RawEvent{Data: ev.Bytes()}
	}
}

// rawError recovers the wire packet of an error. Errors whose constructor
// was never captured come back as a bare error header with code 0.
func rawError(err xgb.Error) event.RawEvent {
	if e, ok := err.(capturedError); ok {
		return event.RawEvent{Data: e.raw}
	}
	buf := make([]byte, 32)
	xgb.Put16(buf[2:], err.SequenceId())
	xgb.Put32(buf[4:], err.BadId())
	return event.RawEvent{Data: buf}
}
