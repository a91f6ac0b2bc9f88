package lockfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "getdiff.lock")

	h, err := Acquire(path, "getdiff")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fields := strings.Fields(string(data))
	require.Len(t, fields, 2)
	assert.Equal(t, "getdiff", fields[0])
	assert.Equal(t, os.Getpid(), mustAtoi(t, fields[1]))

	require.NoError(t, h.Release())
}

func TestAcquireFailsWhenAlreadyHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "getdiff.lock")

	h1, err := Acquire(path, "getdiff")
	require.NoError(t, err)
	defer h1.Release()

	_, err = Acquire(path, "getdiff")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LockHeld")
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "getdiff.lock")

	// A PID that is exceedingly unlikely to be alive, simulating a crashed
	// holder whose lock was never released. flock() itself clears when the
	// holder process exits, so Acquire should succeed immediately, and the
	// recorded PID should be rewritten to this process.
	require.NoError(t, os.WriteFile(path, []byte("getdiff 999999999"), 0o644))

	h, err := Acquire(path, "getdiff")
	require.NoError(t, err)
	defer h.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), strconv.Itoa(os.Getpid()))
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
