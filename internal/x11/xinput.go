package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xinputd/internal/event"
)

// xgb ships no XInput package, so the two XI2 requests xinputd needs are
// encoded here the same way xgb's generated extension packages do it.

const xinputExtName = "XInputExtension"

const (
	xiSelectEventsOpcode = 46
	xiQueryVersionOpcode = 47

	// XIAllDevices selects events for every device, present and future.
	XIAllDevices = 0

	// XIDeviceChangedMask is the XI2 event mask bit for DeviceChanged.
	XIDeviceChangedMask = 1 << event.XIDeviceChanged
)

// xiEventMask is one entry of an XISelectEvents request.
type xiEventMask struct {
	DeviceID uint16
	Mask     []uint32
}

type xiQueryVersionCookie struct {
	*xgb.Cookie
}

type xiQueryVersionReply struct {
	Sequence     uint16
	Length       uint32
	MajorVersion uint16
	MinorVersion uint16
}

func xinputOpcode(c *xgb.Conn) byte {
	c.ExtLock.RLock()
	defer c.ExtLock.RUnlock()
	opcode, ok := c.Extensions[xinputExtName]
	if !ok {
		panic("Cannot issue XInput request before the extension is registered.")
	}
	return opcode
}

// registerXInput records the extension's major opcode on the connection so
// request encoders can find it.
func registerXInput(c *xgb.Conn, opcode byte) {
	c.ExtLock.Lock()
	c.Extensions[xinputExtName] = opcode
	c.ExtLock.Unlock()
}

// xiQueryVersion announces the XI version this client speaks. The server
// refuses XI2 requests from clients that skip it.
func xiQueryVersion(c *xgb.Conn, major, minor uint16) xiQueryVersionCookie {
	cookie := c.NewCookie(true, true)
	c.NewRequest(xiQueryVersionRequest(xinputOpcode(c), major, minor), cookie)
	return xiQueryVersionCookie{cookie}
}

func (cook xiQueryVersionCookie) Reply() (*xiQueryVersionReply, error) {
	buf, err := cook.Cookie.Reply()
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	return xiQueryVersionReplyDecode(buf)
}

func xiQueryVersionReplyDecode(buf []byte) (*xiQueryVersionReply, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("short XIQueryVersion reply: %d bytes", len(buf))
	}
	v := new(xiQueryVersionReply)
	b := 2
	v.Sequence = xgb.Get16(buf[b:])
	b += 2
	v.Length = xgb.Get32(buf[b:])
	b += 4
	v.MajorVersion = xgb.Get16(buf[b:])
	b += 2
	v.MinorVersion = xgb.Get16(buf[b:])
	return v, nil
}

func xiQueryVersionRequest(opcode byte, major, minor uint16) []byte {
	size := 8
	b := 0
	buf := make([]byte, size)

	buf[b] = opcode
	b += 1

	buf[b] = xiQueryVersionOpcode
	b += 1

	xgb.Put16(buf[b:], uint16(size/4))
	b += 2

	xgb.Put16(buf[b:], major)
	b += 2

	xgb.Put16(buf[b:], minor)
	return buf
}

// xiSelectEvents is sent unchecked; failures surface as errors on the
// event stream.
func xiSelectEvents(c *xgb.Conn, window xproto.Window, masks []xiEventMask) {
	cookie := c.NewCookie(false, false)
	c.NewRequest(xiSelectEventsRequest(xinputOpcode(c), window, masks), cookie)
}

func xiSelectEventsRequest(opcode byte, window xproto.Window, masks []xiEventMask) []byte {
	size := 12
	for _, m := range masks {
		size += 4 + 4*len(m.Mask)
	}
	b := 0
	buf := make([]byte, size)

	buf[b] = opcode
	b += 1

	buf[b] = xiSelectEventsOpcode
	b += 1

	xgb.Put16(buf[b:], uint16(size/4))
	b += 2

	xgb.Put32(buf[b:], uint32(window))
	b += 4

	xgb.Put16(buf[b:], uint16(len(masks)))
	b += 2

	b += 2 // padding

	for _, m := range masks {
		xgb.Put16(buf[b:], m.DeviceID)
		b += 2
		xgb.Put16(buf[b:], uint16(len(m.Mask)))
		b += 2
		for _, word := range m.Mask {
			xgb.Put32(buf[b:], word)
			b += 4
		}
	}
	return buf
}
