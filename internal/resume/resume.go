// Package resume reads and atomically writes the previous.seq resume
// pointer: the single durable value the orchestrator advances, and only
// after a complete successful (diff, state) pair.
package resume

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/owaldhammad/getdiff/internal/errkind"
	"github.com/owaldhammad/getdiff/internal/sequence"
)

// Read parses the resume pointer file at path. A missing file is reported
// distinctly from a malformed one so the orchestrator can tell "first run"
// from "corrupted state".
func Read(path string) (sequence.Number, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errkind.New(errkind.IoError, "Missing: no previous.seq")
		}
		return 0, errkind.Wrap(errkind.IoError, "reading previous.seq", err)
	}
	text := string(data)
	if !strings.HasSuffix(text, "\n") || strings.Count(text, "\n") != 1 {
		return 0, errkind.New(errkind.ParseError, "Malformed: previous.seq must be exactly one LF-terminated line")
	}
	line := strings.TrimSuffix(text, "\n")
	n, err := sequence.Parse(line)
	if err != nil {
		return 0, errkind.Wrap(errkind.ParseError, "Malformed: previous.seq contents", err)
	}
	return n, nil
}

// Write durably records n: write to a uuid-suffixed scratch file under
// tmpDir, fsync, then atomically rename over path. Never partial, never
// append.
func Write(path, tmpDir string, n sequence.Number) error {
	scratch := filepath.Join(tmpDir, fmt.Sprintf("previous.seq.%s.new", uuid.NewString()))

	f, err := os.OpenFile(scratch, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errkind.Wrap(errkind.IoError, "creating resume-pointer scratch file", err)
	}
	if _, err := f.WriteString(sequence.Format(n) + "\n"); err != nil {
		f.Close()
		os.Remove(scratch)
		return errkind.Wrap(errkind.IoError, "writing resume-pointer scratch file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(scratch)
		return errkind.Wrap(errkind.IoError, "fsync resume-pointer scratch file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(scratch)
		return errkind.Wrap(errkind.IoError, "closing resume-pointer scratch file", err)
	}
	if err := os.Rename(scratch, path); err != nil {
		os.Remove(scratch)
		return errkind.Wrap(errkind.IoError, "renaming resume-pointer scratch file", err)
	}
	return nil
}
