package x11

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// displayAddr is a parsed DISPLAY string.
type displayAddr struct {
	network string
	address string
	// host and number select the Xauthority entry.
	host   string
	number string
	screen int
}

// parseDisplay resolves a DISPLAY string the way xgb does: "[proto/][host]:n[.s]"
// or "/path/to/socket:n[.s]". An empty name falls back to $DISPLAY.
func parseDisplay(name string) (displayAddr, error) {
	if name == "" {
		name = os.Getenv("DISPLAY")
	}
	if name == "" {
		return displayAddr{}, errors.New("empty display string")
	}
	bad := fmt.Errorf("bad display string: %s", name)

	colon := strings.LastIndex(name, ":")
	if colon < 0 {
		return displayAddr{}, bad
	}

	var d displayAddr
	var protocol, socket string
	if name[0] == '/' {
		socket = name[:colon]
	} else if slash := strings.LastIndex(name[:colon], "/"); slash >= 0 {
		protocol = name[:slash]
		d.host = name[slash+1 : colon]
	} else {
		d.host = name[:colon]
	}

	rest := name[colon+1:]
	if dot := strings.LastIndex(rest, "."); dot >= 0 {
		scr, err := strconv.Atoi(rest[dot+1:])
		if err != nil || scr < 0 {
			return displayAddr{}, bad
		}
		d.screen = scr
		rest = rest[:dot]
	}
	num, err := strconv.Atoi(rest)
	if err != nil || num < 0 {
		return displayAddr{}, bad
	}
	d.number = rest

	switch {
	case socket != "":
		d.network, d.address = "unix", socket+":"+d.number
	case d.host != "" && d.host != "unix":
		if protocol == "" {
			protocol = "tcp"
		}
		d.network = protocol
		d.address = net.JoinHostPort(d.host, strconv.Itoa(6000+num))
	default:
		d.host = ""
		d.network, d.address = "unix", "/tmp/.X11-unix/X"+d.number
	}
	return d, nil
}

// dialDisplay opens the display socket and wraps it for xgb. The setup
// request carries the Xauthority cookie for this display, if there is one.
func dialDisplay(name string) (*frameConn, displayAddr, error) {
	d, err := parseDisplay(name)
	if err != nil {
		return nil, displayAddr{}, err
	}

	authName, authData, err := readAuthority(d.host, d.number)
	if err != nil {
		authName, authData = "", nil
	}

	nc, err := net.Dial(d.network, d.address)
	if err != nil {
		return nil, displayAddr{}, fmt.Errorf("cannot connect to %s: %w", name, err)
	}
	return newFrameConn(nc, setupRequest(authName, authData)), d, nil
}
