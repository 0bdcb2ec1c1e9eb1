// Package netutil holds the small socket-level primitives the reactor needs
// that net.Listener/net.Conn don't expose directly: SO_REUSEPORT listener
// construction, the non-blocking fd flag, and a non-blocking best-effort
// send.
package netutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MakeNonblocking sets O_NONBLOCK on fd, mirroring the original's explicit
// fcntl call for sockets obtained without accept4(SOCK_NONBLOCK).
func MakeNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}

// SetupListener creates, binds, and starts listening on an IPv4 TCP socket
// bound to port with SO_REUSEPORT set, so that every worker process can
// bind the same port independently and let the kernel load-balance accepts
// across them.
func SetupListener(port int) (fd int, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("netutil: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: SO_REUSEPORT: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: bind :%d: %w", port, err)
	}

	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: listen: %w", err)
	}

	if err := MakeNonblocking(fd); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: nonblocking listener: %w", err)
	}

	return fd, nil
}

// Accept4 wraps accept4(2) with SOCK_NONBLOCK, matching the original's
// single-syscall non-blocking accept rather than accept()+fcntl().
func Accept4(listenFd int) (fd int, err error) {
	fd, _, err = unix.Accept4(listenFd, unix.SOCK_NONBLOCK)
	return fd, err
}

// WriteNonBlocking writes as much of buf to fd as the socket will currently
// accept without blocking, returning the number of bytes written. Unlike
// the original's sendall(), which gives up on the first failed send()
// (EAGAIN included), this treats EAGAIN/EWOULDBLOCK as a short write: it
// stops and returns what it managed so far with a nil error, leaving it to
// the caller (the
// reactor, via an EPOLLOUT registration on fd) to resume once the socket is
// writable again. Looping here would pin the calling worker's single
// thread on one stalled connection, starving every other fd it multiplexes.
func WriteNonBlocking(fd int, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := unix.Write(fd, buf[written:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return written, nil
			}
			return written, fmt.Errorf("netutil: write: %w", err)
		}
		written += n
	}
	return written, nil
}
