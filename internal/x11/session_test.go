package x11

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xinputd/internal/event"
)

const (
	fakeRoot         = 0x1e5
	fakeXIOpcode     = 131
	fakeXIFirstEvent = 66
	fakeRROpcode     = 140
	fakeRRFirstEvent = 89
)

type fakeExtension struct {
	name       string
	opcode     byte
	firstEvent byte
	firstError byte
}

type fakeRequest struct {
	major, minor byte
	body         []byte
}

// fakeXServer answers just enough of the core protocol, XInput and RandR
// for a Session to negotiate and subscribe over an in-memory pipe.
type fakeXServer struct {
	t    *testing.T
	conn net.Conn

	exts      []fakeExtension
	xiVersion [2]uint16
	rrVersion [2]uint32

	writeMu sync.Mutex

	mu       sync.Mutex
	requests []fakeRequest
}

func newFakeXServer(t *testing.T) *fakeXServer {
	return &fakeXServer{
		t: t,
		exts: []fakeExtension{
			{name: xinputExtName, opcode: fakeXIOpcode, firstEvent: fakeXIFirstEvent, firstError: 129},
			{name: randrExtName, opcode: fakeRROpcode, firstEvent: fakeRRFirstEvent, firstError: 147},
		},
		xiVersion: [2]uint16{2, 3},
		rrVersion: [2]uint32{1, 5},
	}
}

func (s *fakeXServer) without(name string) *fakeXServer {
	kept := s.exts[:0]
	for _, ext := range s.exts {
		if ext.name != name {
			kept = append(kept, ext)
		}
	}
	s.exts = kept
	return s
}

// start returns the client end of the connection.
func (s *fakeXServer) start() net.Conn {
	client, server := net.Pipe()
	s.conn = server
	go s.serve()
	s.t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return client
}

func (s *fakeXServer) serve() {
	head := make([]byte, 12)
	if _, err := io.ReadFull(s.conn, head); err != nil {
		return
	}
	auth := xgb.Pad(int(xgb.Get16(head[6:]))) + xgb.Pad(int(xgb.Get16(head[8:])))
	if _, err := io.CopyN(io.Discard, s.conn, int64(auth)); err != nil {
		return
	}
	s.send(fakeSetup())

	var seq uint16
	for {
		hdr := make([]byte, 4)
		if _, err := io.ReadFull(s.conn, hdr); err != nil {
			return
		}
		body := make([]byte, max(4, 4*int(xgb.Get16(hdr[2:]))))
		copy(body, hdr)
		if _, err := io.ReadFull(s.conn, body[4:]); err != nil {
			return
		}
		seq++

		s.mu.Lock()
		s.requests = append(s.requests, fakeRequest{major: hdr[0], minor: hdr[1], body: body})
		s.mu.Unlock()

		if reply := s.reply(seq, body); reply != nil {
			s.send(reply)
		}
	}
}

func (s *fakeXServer) reply(seq uint16, req []byte) []byte {
	buf := make([]byte, 32)
	buf[0] = 1
	xgb.Put16(buf[2:], seq)

	switch {
	case req[0] == 98: // QueryExtension
		name := string(req[8 : 8+int(xgb.Get16(req[4:]))])
		for _, ext := range s.exts {
			if ext.name == name {
				buf[8] = 1
				buf[9] = ext.opcode
				buf[10] = ext.firstEvent
				buf[11] = ext.firstError
			}
		}
	case req[0] == 43: // GetInputFocus
		xgb.Put32(buf[8:], fakeRoot)
	case req[0] == fakeXIOpcode && req[1] == xiQueryVersionOpcode:
		xgb.Put16(buf[8:], s.xiVersion[0])
		xgb.Put16(buf[10:], s.xiVersion[1])
	case req[0] == fakeRROpcode && req[1] == 0:
		xgb.Put32(buf[8:], s.rrVersion[0])
		xgb.Put32(buf[12:], s.rrVersion[1])
	default:
		return nil
	}
	return buf
}

func (s *fakeXServer) send(packet []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.Write(packet)
}

func (s *fakeXServer) requestsSoFar() []fakeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fakeRequest(nil), s.requests...)
}

func fakeSetup() []byte {
	setup := xproto.SetupInfo{
		Status:               1,
		ProtocolMajorVersion: 11,
		ResourceIdBase:       0x400000,
		ResourceIdMask:       0x1fffff,
		MaximumRequestLength: 0xffff,
		RootsLen:             1,
		Roots: []xproto.ScreenInfo{{
			Root:           fakeRoot,
			WidthInPixels:  1920,
			HeightInPixels: 1080,
			RootDepth:      24,
		}},
	}
	buf := setup.Bytes()
	xgb.Put16(buf[6:], uint16((len(buf)-8)/4))
	return buf
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startSession(t *testing.T, srv *fakeXServer, opts Options) (*Session, error) {
	t.Helper()
	t.Setenv("XAUTHORITY", filepath.Join(t.TempDir(), "missing"))
	client := srv.start()
	return negotiate(newFrameConn(client, nil), 0, opts, testLogger())
}

func waitEvent(t *testing.T, s *Session) (event.RawEvent, error) {
	t.Helper()
	type result struct {
		ev  event.RawEvent
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := s.WaitForEvent()
		ch <- result{ev, err}
	}()
	select {
	case r := <-ch:
		return r.ev, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForEvent did not return")
		return event.RawEvent{}, nil
	}
}

func TestNegotiate_RecordsExtensionOffsets(t *testing.T) {
	s, err := startSession(t, newFakeXServer(t), Options{Devices: true, Outputs: true})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	defer s.Close()

	want := event.Offsets{
		InputEnabled:     true,
		InputOpcode:      fakeXIOpcode,
		InputFirstEvent:  fakeXIFirstEvent,
		OutputEnabled:    true,
		OutputFirstEvent: fakeRRFirstEvent,
	}
	if got := s.Offsets(); got != want {
		t.Errorf("Offsets() = %+v, want %+v", got, want)
	}
	if s.Root() != fakeRoot {
		t.Errorf("Root() = %#x, want %#x", s.Root(), fakeRoot)
	}
}

func TestNegotiate_OutputsOnly(t *testing.T) {
	srv := newFakeXServer(t).without(xinputExtName)
	s, err := startSession(t, srv, Options{Outputs: true})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	defer s.Close()

	if s.Offsets().InputEnabled {
		t.Error("input enabled although devices were not requested")
	}
	if !s.Offsets().OutputEnabled {
		t.Error("output not enabled")
	}
}

func TestNegotiate_MissingExtension(t *testing.T) {
	tests := []struct {
		name    string
		missing string
	}{
		{name: "no XInput", missing: xinputExtName},
		{name: "no RandR", missing: randrExtName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeXServer(t).without(tt.missing)
			_, err := startSession(t, srv, Options{Devices: true, Outputs: true})
			if !errors.Is(err, ErrExtensionMissing) {
				t.Fatalf("negotiate error = %v, want ErrExtensionMissing", err)
			}
		})
	}
}

func TestNegotiate_VersionTooOld(t *testing.T) {
	t.Run("XInput 1.5", func(t *testing.T) {
		srv := newFakeXServer(t)
		srv.xiVersion = [2]uint16{1, 5}
		_, err := startSession(t, srv, Options{Devices: true})
		if !errors.Is(err, ErrExtensionMissing) {
			t.Fatalf("negotiate error = %v, want ErrExtensionMissing", err)
		}
	})
	t.Run("RandR 1.1", func(t *testing.T) {
		srv := newFakeXServer(t)
		srv.rrVersion = [2]uint32{1, 1}
		_, err := startSession(t, srv, Options{Outputs: true})
		if !errors.Is(err, ErrExtensionMissing) {
			t.Fatalf("negotiate error = %v, want ErrExtensionMissing", err)
		}
	})
}

func TestSubscribe_SelectsEventsThenRoundTrips(t *testing.T) {
	srv := newFakeXServer(t)
	s, err := startSession(t, srv, Options{Devices: true, Outputs: true})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	defer s.Close()

	if err := s.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	reqs := srv.requestsSoFar()
	xi, rr := -1, -1
	for i, r := range reqs {
		switch {
		case r.major == fakeXIOpcode && r.minor == xiSelectEventsOpcode:
			xi = i
			if w := xgb.Get32(r.body[4:]); w != fakeRoot {
				t.Errorf("XISelectEvents window = %#x, want root", w)
			}
			if m := xgb.Get32(r.body[16:]); m != XIDeviceChangedMask {
				t.Errorf("XISelectEvents mask = %#x, want %#x", m, XIDeviceChangedMask)
			}
		case r.major == fakeRROpcode && r.minor == 4:
			rr = i
			if w := xgb.Get32(r.body[4:]); w != fakeRoot {
				t.Errorf("RRSelectInput window = %#x, want root", w)
			}
			if m := xgb.Get16(r.body[8:]); m != randr.NotifyMaskOutputChange {
				t.Errorf("RRSelectInput mask = %#x, want %#x", m, randr.NotifyMaskOutputChange)
			}
		}
	}
	if xi < 0 || rr < 0 {
		t.Fatalf("selections missing: XISelectEvents at %d, RRSelectInput at %d", xi, rr)
	}
	if last := reqs[len(reqs)-1]; last.major != 43 {
		t.Fatalf("last request before Subscribe returned = %d, want GetInputFocus", last.major)
	}
}

func TestWaitForEvent_GenericEventPayloadIsSkipped(t *testing.T) {
	srv := newFakeXServer(t)
	s, err := startSession(t, srv, Options{Devices: true, Outputs: true})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	defer s.Close()
	if err := s.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// DeviceChanged with four words of class data; the zero bytes would
	// read as an error packet if they reached xgb.
	changed := make([]byte, 32+16)
	changed[0] = event.GenericEvent
	changed[1] = fakeXIOpcode
	xgb.Put32(changed[4:], 4)
	xgb.Put16(changed[8:], event.XIDeviceChanged)
	srv.send(changed)

	notify := make([]byte, 32)
	notify[0] = fakeRRFirstEvent + event.RRNotify
	notify[1] = randr.NotifyOutputChange
	xgb.Put32(notify[4:], 100)
	srv.send(notify)

	var got []event.Classified
	for i := 0; i < 2; i++ {
		raw, err := waitEvent(t, s)
		if err != nil {
			t.Fatalf("WaitForEvent: %v", err)
		}
		got = append(got, event.Classify(s.Offsets(), raw))
	}

	if got[0].Kind != event.DeviceChanged {
		t.Errorf("first event = %v, want device-changed", got[0])
	}
	if got[1].Kind != event.DisplayChanged || got[1].Timestamp != 100 {
		t.Errorf("second event = %v, want display-changed(time=100)", got[1])
	}
}

func TestWaitForEvent_EOFAfterClose(t *testing.T) {
	s, err := startSession(t, newFakeXServer(t), Options{Devices: true, Outputs: true})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if err := s.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	s.Close()
	if _, err := waitEvent(t, s); !errors.Is(err, io.EOF) {
		t.Fatalf("WaitForEvent after Close = %v, want io.EOF", err)
	}
	s.Close()
}
