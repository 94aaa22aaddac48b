// File: endpoint/listen.go
// Author: momentics <momentics@gmail.com>
//
// Socket creation helpers: walk the spec chain until one binds.

package endpoint

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Listen creates a listening stream socket from the first spec in the
// chain that binds. The returned descriptor is ready for accept(2).
func Listen(specs []Spec) (int, error) {
	var lastErr error
	for _, spec := range specs {
		fd, err := unix.Socket(spec.Domain, spec.Type, spec.Protocol)
		if err != nil {
			lastErr = err
			continue
		}
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if err := unix.Bind(fd, spec.Addr); err != nil {
			unix.Close(fd)
			lastErr = fmt.Errorf("bind %s: %w", spec, err)
			continue
		}
		if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
			unix.Close(fd)
			lastErr = fmt.Errorf("listen %s: %w", spec, err)
			continue
		}
		return fd, nil
	}
	return -1, lastErr
}

// Bind creates a bound datagram socket from the first spec in the chain
// that binds.
func Bind(specs []Spec) (int, Spec, error) {
	var lastErr error
	for _, spec := range specs {
		fd, err := unix.Socket(spec.Domain, spec.Type, spec.Protocol)
		if err != nil {
			lastErr = err
			continue
		}
		if err := unix.Bind(fd, spec.Addr); err != nil {
			unix.Close(fd)
			lastErr = fmt.Errorf("bind %s: %w", spec, err)
			continue
		}
		return fd, spec, nil
	}
	return -1, Spec{}, lastErr
}
