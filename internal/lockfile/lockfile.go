// Package lockfile provides the single-writer guard over a getdiff working
// directory: a whole-file advisory exclusive lock recording "<progname>
// <pid>", with stale-lock detection when the recorded PID no longer exists.
package lockfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

// Handle is a held lock; release it exactly once, on every exit path.
type Handle struct {
	file *os.File
	path string
}

// Acquire opens-or-creates the lock file at path and takes an exclusive
// advisory lock on the whole file. If another live process holds it,
// returns a LockError. If the file records a PID for a process that no
// longer exists, the lock is reclaimed automatically (the caller need not
// retry manually — reclaim happens inside this call).
func Acquire(path, progName string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errkind.Wrap(errkind.LockError, "opening lock file", err)
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return writeAndHold(f, path, progName)
	}
	if err != unix.EWOULDBLOCK {
		f.Close()
		return nil, errkind.Wrap(errkind.LockError, "flock", err)
	}

	// Someone else holds it (or held it and died without releasing, which
	// on most platforms flock() would have already cleared — but the
	// recorded PID may still point at a long-gone process if the lock file
	// was copied or the lock was taken by a process on another mount
	// namespace). Check PID liveness and, if orphaned, retry once.
	recordedPID, readErr := readPID(path)
	if readErr == nil && recordedPID > 0 && !pidAlive(recordedPID) {
		f.Close()
		f, err = os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, errkind.Wrap(errkind.LockError, "reopening orphaned lock file", err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err == nil {
			return writeAndHold(f, path, progName)
		}
		f.Close()
		return nil, errkind.New(errkind.LockError, "LockHeld: lock reclaim raced another process")
	}

	f.Close()
	return nil, errkind.New(errkind.LockError, fmt.Sprintf("LockHeld: working directory locked by pid %d", recordedPID))
}

func writeAndHold(f *os.File, path, progName string) (*Handle, error) {
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, errkind.Wrap(errkind.LockError, "truncating lock file", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%s %d", progName, os.Getpid())), 0); err != nil {
		f.Close()
		return nil, errkind.Wrap(errkind.LockError, "writing lock file", err)
	}
	return &Handle{file: f, path: path}, nil
}

// Release unlocks and closes the lock file. Safe to call via defer
// immediately after a successful Acquire, including on panic unwind.
func (h *Handle) Release() error {
	if h == nil || h.file == nil {
		return nil
	}
	unix.Flock(int(h.file.Fd()), unix.LOCK_UN)
	return h.file.Close()
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return 0, fmt.Errorf("malformed lock file contents")
	}
	return strconv.Atoi(fields[1])
}

// pidAlive reports whether pid names a live process, by the presence of
// /proc/<pid> — a standard PID-liveness check, here used for stale-lock
// reclaim.
func pidAlive(pid int) bool {
	_, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	return err == nil
}
