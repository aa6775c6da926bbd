package reactor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// FD is a raw non-blocking socket descriptor. Read and Write return
// unix.EAGAIN when the operation would block; use IsWouldBlock to test.
type FD int

func (f FD) Read(p []byte) (int, error) {
	n, err := unix.Read(int(f), p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (f FD) Write(p []byte) (int, error) {
	n, err := unix.Write(int(f), p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (f FD) Close() error {
	return unix.Close(int(f))
}

// IsWouldBlock reports whether err means "not ready, try later".
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// ListenUnix creates a non-blocking listening Unix stream socket at path.
// The caller removes stale socket files beforehand.
func ListenUnix(path string, backlog int) (FD, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set non-blocking: %w", err)
	}
	return FD(fd), nil
}

// Accept accepts one pending connection and makes it non-blocking.
func Accept(listener FD) (FD, error) {
	fd, _, err := unix.Accept(int(listener))
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set non-blocking: %w", err)
	}
	return FD(fd), nil
}
