package event

import "fmt"

// Kind is the logical category of an incoming packet.
type Kind int

const (
	Unrecognized Kind = iota
	DeviceChanged
	DisplayChanged
	ProtocolError
)

func (k Kind) String() string {
	switch k {
	case DeviceChanged:
		return "device-changed"
	case DisplayChanged:
		return "display-changed"
	case ProtocolError:
		return "protocol-error"
	default:
		return "unrecognized"
	}
}

// Offsets are the extension codes recorded during negotiation. They stay
// fixed for the lifetime of a session.
type Offsets struct {
	// InputEnabled is false when XInput was not negotiated.
	InputEnabled    bool
	InputOpcode     byte
	InputFirstEvent byte

	// OutputEnabled is false when RandR was not negotiated.
	OutputEnabled    bool
	OutputFirstEvent byte
}

// Classified is the decoded form of a RawEvent.
type Classified struct {
	Kind Kind
	// Timestamp is set for DisplayChanged.
	Timestamp uint32
	// Code is the error code for ProtocolError.
	Code byte
	// Tag is the stripped response type, kept for diagnostics.
	Tag byte
}

func (c Classified) String() string {
	switch c.Kind {
	case DisplayChanged:
		return fmt.Sprintf("%s(time=%d)", c.Kind, c.Timestamp)
	case ProtocolError:
		return fmt.Sprintf("%s(code=%d)", c.Kind, c.Code)
	case Unrecognized:
		return fmt.Sprintf("%s(type=%d)", c.Kind, c.Tag)
	default:
		return c.Kind.String()
	}
}

// Classify maps a raw packet to its logical category. It has no side effects.
func Classify(off Offsets, ev RawEvent) Classified {
	tag := ev.ResponseType()
	out := Classified{Kind: Unrecognized, Tag: tag}

	switch {
	case tag == ErrorResponse:
		out.Kind = ProtocolError
		out.Code = ev.ErrorCode()
	case tag == GenericEvent:
		if off.InputEnabled &&
			ev.Extension() == off.InputOpcode &&
			ev.EventType() == XIDeviceChanged {
			out.Kind = DeviceChanged
		}
	case off.OutputEnabled && tag == off.OutputFirstEvent+RRNotify:
		out.Kind = DisplayChanged
		out.Timestamp = ev.Timestamp()
	}
	return out
}
