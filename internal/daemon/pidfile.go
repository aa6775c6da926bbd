package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrPIDFileNotFound is returned when the PID file does not exist.
	ErrPIDFileNotFound = errors.New("PID file not found")
	// ErrInvalidPIDFile is returned when the PID file contains invalid data.
	ErrInvalidPIDFile = errors.New("invalid PID file")
	// ErrStaleSocket is returned when the socket answers but no daemon
	// process owns the PID file.
	ErrStaleSocket = errors.New("stale socket")
)

// probeTimeout bounds the socket reachability check.
const probeTimeout = 500 * time.Millisecond

// PIDFile is the file a running daemon records its process ID in.
type PIDFile string

// Write records the current process ID, replacing the file atomically.
func (p PIDFile) Write() error {
	path := string(p)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".btu-pid-*")
	if err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		tmp.Close()
		return fmt.Errorf("write PID file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Read returns the recorded process ID.
// Returns ErrPIDFileNotFound if the file doesn't exist and ErrInvalidPIDFile
// if it holds anything but a positive integer.
func (p PIDFile) Read() (int, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrPIDFileNotFound
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPIDFile, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: invalid PID %d", ErrInvalidPIDFile, pid)
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p PIDFile) Remove() error {
	if err := os.Remove(string(p)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// ProcessAlive reports whether a process with the given PID exists.
func ProcessAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}
	// Signal 0 performs the permission and existence checks only.
	switch err := unix.Kill(pid, 0); {
	case err == nil, errors.Is(err, unix.EPERM):
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	default:
		return false, fmt.Errorf("check process %d: %w", pid, err)
	}
}

// SocketReachable reports whether something accepts connections on the
// daemon socket.
func SocketReachable(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Status is the daemon state as seen from outside the process.
type Status struct {
	Running         bool
	PID             int
	SocketReachable bool
}

// GetStatus combines the PID file and socket checks.
func GetStatus(pidFile PIDFile, socketPath string) (*Status, error) {
	status := &Status{SocketReachable: SocketReachable(socketPath)}

	pid, err := pidFile.Read()
	if errors.Is(err, ErrPIDFileNotFound) {
		if status.SocketReachable {
			return status, fmt.Errorf("%w: %s answers but no PID file exists", ErrStaleSocket, socketPath)
		}
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.PID = pid

	running, err := ProcessAlive(pid)
	if err != nil {
		return status, err
	}
	status.Running = running

	if status.SocketReachable && !status.Running {
		return status, fmt.Errorf("%w: process %d not running", ErrStaleSocket, pid)
	}
	return status, nil
}
