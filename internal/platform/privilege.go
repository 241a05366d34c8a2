// Package platform holds the OS-level startup collaborators: the privilege
// check, detaching into the background and the PID file.
package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrPrivileged is returned when the daemon would run as root or setuid.
var ErrPrivileged = errors.New("may not run as root")

// CheckPrivileges refuses the superuser and any process whose real and
// effective user differ.
func CheckPrivileges() error {
	return checkIDs(unix.Getuid(), unix.Geteuid())
}

func checkIDs(uid, euid int) error {
	if uid == 0 || euid == 0 {
		return ErrPrivileged
	}
	if uid != euid {
		return fmt.Errorf("%w: real uid %d differs from effective uid %d", ErrPrivileged, uid, euid)
	}
	return nil
}
