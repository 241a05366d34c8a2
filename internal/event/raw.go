// Package event turns X11 wire packets into the small set of hotplug
// notifications xinputd acts on, and decides which of them warrant running
// the user's command.
package event

import "encoding/binary"

// Wire constants shared by the classifier and the X11 session.
const (
	// SendEventBit is set by the server on events produced by SendEvent.
	SendEventBit = 0x80

	// ErrorResponse is the response type of an X11 error packet.
	ErrorResponse = 0

	// GenericEvent is the core response type carrying XGE extension events.
	GenericEvent = 35

	// XIDeviceChanged is the XInput2 event type for device changes.
	XIDeviceChanged = 1

	// RRNotify is the RandR event number (relative to its first event)
	// used for crtc/output/property change notifications.
	RRNotify = 1
)

// RawEvent is one 32-byte server packet (error or event) exactly as it
// arrived. Only the header bytes are interpreted.
type RawEvent struct {
	Data []byte
}

// ResponseType returns the response tag with the SendEvent bit cleared.
// An empty packet reports 0xff so it can never match a real code.
func (r RawEvent) ResponseType() byte {
	if len(r.Data) == 0 {
		return 0xff
	}
	return r.Data[0] &^ SendEventBit
}

// Extension is the major opcode embedded in a generic event.
func (r RawEvent) Extension() byte {
	if len(r.Data) < 2 {
		return 0
	}
	return r.Data[1]
}

// ErrorCode is the code of an error packet.
func (r RawEvent) ErrorCode() byte {
	if len(r.Data) < 2 {
		return 0
	}
	return r.Data[1]
}

// EventType is the sub-type of a generic event.
func (r RawEvent) EventType() uint16 {
	if len(r.Data) < 10 {
		return 0
	}
	return binary.LittleEndian.Uint16(r.Data[8:])
}

// Timestamp is the server time carried by RandR change notifications.
func (r RawEvent) Timestamp() uint32 {
	if len(r.Data) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(r.Data[4:])
}
