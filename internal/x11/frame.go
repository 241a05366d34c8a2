package x11

import (
	"bufio"
	"io"
	"net"

	"github.com/BurntSushi/xgb"

	"github.com/1broseidon/xinputd/internal/event"
)

// frameConn sits between xgb and the display socket and hands xgb one whole
// server packet at a time.
//
// xgb reads every event as exactly 32 bytes. A generic event (XGE) declares
// extra payload in its length field, and XI2 DeviceChanged always carries a
// class list there, so frameConn drops that payload before xgb would parse
// it as the next packets. Replies pass through with their payload intact.
type frameConn struct {
	net.Conn

	r       *bufio.Reader
	pending []byte

	setup     []byte
	setupSent bool
	setupRead bool
	failed    bool
}

// newFrameConn wraps nc. A non-nil setup replaces the connection setup
// request xgb writes first.
func newFrameConn(nc net.Conn, setup []byte) *frameConn {
	return &frameConn{
		Conn:  nc,
		r:     bufio.NewReader(nc),
		setup: setup,
	}
}

func (f *frameConn) Write(p []byte) (int, error) {
	if !f.setupSent {
		f.setupSent = true
		if f.setup != nil {
			if _, err := f.Conn.Write(f.setup); err != nil {
				return 0, err
			}
			return len(p), nil
		}
	}
	return f.Conn.Write(p)
}

func (f *frameConn) Read(p []byte) (int, error) {
	if len(f.pending) == 0 {
		if f.failed {
			// xgb shuts the connection down on the first read error and
			// closes its request channel again on a second one.
			select {}
		}
		packet, err := f.next()
		if err != nil {
			f.failed = true
			return 0, err
		}
		f.pending = packet
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// next reads one complete packet off the wire: the setup reply first, then
// replies, errors and events.
func (f *frameConn) next() ([]byte, error) {
	if !f.setupRead {
		head := make([]byte, 8)
		if _, err := io.ReadFull(f.r, head); err != nil {
			return nil, err
		}
		buf := make([]byte, 8+4*int(xgb.Get16(head[6:])))
		copy(buf, head)
		if _, err := io.ReadFull(f.r, buf[8:]); err != nil {
			return nil, err
		}
		f.setupRead = true
		return buf, nil
	}

	buf := make([]byte, 32)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, err
	}
	extra := int64(xgb.Get32(buf[4:])) * 4

	switch {
	case buf[0] == 1 && extra > 0:
		reply := make([]byte, 32+extra)
		copy(reply, buf)
		if _, err := io.ReadFull(f.r, reply[32:]); err != nil {
			return nil, err
		}
		return reply, nil
	case buf[0]&^event.SendEventBit == event.GenericEvent && extra > 0:
		if _, err := io.CopyN(io.Discard, f.r, extra); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
