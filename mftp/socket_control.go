package mftp

import (
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

type closer interface {
	Close() error
}

const alreadyClosedMsg = "use of closed network connection"

// close connection
func connectionCloser(c closer, log *logger) {
	if err := c.Close(); err != nil {
		if !strings.Contains(err.Error(), alreadyClosedMsg) {
			// log is nil when unit test
			if log != nil {
				log.err(err.Error())
			}
		}
	}
}

// set reuse address for the passive listeners sharing the pool range
func setReuseAddr(network, address string, c syscall.RawConn) error {
	var err error
	c.Control(func(fd uintptr) {
		err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	return err
}

// set reuse IP & Port for sharing port 20 (just set active mode)
func setReuseIPPort(network, address string, c syscall.RawConn) error {
	var err error
	c.Control(func(fd uintptr) {
		err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if err != nil {
			return
		}

		err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		if err != nil {
			return
		}
	})
	return err
}
