package x11

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/xgb"
)

// Xauthority address families, from X11/Xauth.h.
const (
	familyLocal = 256
	familyWild  = 65535
)

// readAuthority returns the first Xauthority entry for the given host and
// display number. An empty host (or "localhost") means this machine.
func readAuthority(host, number string) (name string, data []byte, err error) {
	if host == "" || host == "localhost" {
		if host, err = os.Hostname(); err != nil {
			return "", nil, err
		}
	}

	path := os.Getenv("XAUTHORITY")
	if path == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", nil, errors.New("Xauthority not found: $XAUTHORITY, $HOME not set")
		}
		path = filepath.Join(home, ".Xauthority")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	for {
		var family uint16
		if err := binary.Read(r, binary.BigEndian, &family); err != nil {
			if errors.Is(err, io.EOF) {
				return "", nil, fmt.Errorf("no Xauthority entry for %s:%s", host, number)
			}
			return "", nil, err
		}
		var fields [4][]byte
		for i := range fields {
			if fields[i], err = readCounted(r); err != nil {
				return "", nil, fmt.Errorf("read %s: %w", path, err)
			}
		}
		addr, disp := string(fields[0]), string(fields[1])

		addrMatch := family == familyWild || (family == familyLocal && addr == host)
		dispMatch := disp == "" || disp == number
		if addrMatch && dispMatch {
			return string(fields[2]), fields[3], nil
		}
	}
}

func readCounted(r io.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// setupRequest encodes the little-endian connection setup for protocol 11.0.
func setupRequest(authName string, authData []byte) []byte {
	buf := make([]byte, 12+xgb.Pad(len(authName))+xgb.Pad(len(authData)))
	buf[0] = 0x6c
	xgb.Put16(buf[2:], 11)
	xgb.Put16(buf[4:], 0)
	xgb.Put16(buf[6:], uint16(len(authName)))
	xgb.Put16(buf[8:], uint16(len(authData)))
	copy(buf[12:], authName)
	copy(buf[12+xgb.Pad(len(authName)):], authData)
	return buf
}
