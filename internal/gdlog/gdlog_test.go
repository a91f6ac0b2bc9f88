package gdlog

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppendsTimestampedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "getdiff.log")

	l, err := Open(path)
	require.NoError(t, err)
	l.Banner("START", "1.0.0")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} \[\d+\] START getdiff version 1\.0\.0\n$`)
	assert.Regexp(t, re, string(data))
}

func TestOpenAppendsAcrossInvocations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "getdiff.log")

	l1, err := Open(path)
	require.NoError(t, err)
	l1.Info("first")
	require.NoError(t, l1.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	l2.Info("second")
	require.NoError(t, l2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestSummaryLineUncolorizedContainsKindAndSequence(t *testing.T) {
	var buf bytes.Buffer
	SummaryLine(&buf, "NetError", "123")
	assert.Contains(t, buf.String(), "NetError")
	assert.Contains(t, buf.String(), "123")
}
