package resume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

func TestWriteReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "previous.seq")

	require.NoError(t, Write(path, dir, 42))

	n, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), uint32(n))
}

func TestReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(filepath.Join(dir, "previous.seq"))
	require.Error(t, err)
	e, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errkind.IoError, e.Kind)
}

func TestReadMalformedContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "previous.seq")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	e, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errkind.ParseError, e.Kind)
}

func TestReadRejectsMultipleLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "previous.seq")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
}

func TestWriteLeavesNoScratchFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "previous.seq")
	require.NoError(t, Write(path, dir, 1))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "previous.seq", entries[0].Name())
}
