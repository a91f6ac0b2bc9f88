// Package statefile parses and serializes the replication state.txt sidecar:
// a small, line-oriented text format carrying a UTC timestamp, a sequence
// number, and (for Geofabrik mirrors) the original upstream OSM sequence
// number as a comment line.
package statefile

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/owaldhammad/getdiff/internal/errkind"
	"github.com/owaldhammad/getdiff/internal/sequence"
)

const (
	timestampPrefix = "timestamp="
	sequencePrefix  = "sequenceNumber="
	originalPrefix  = "# original OSM minutely replication sequence number"
)

// Info is a fully parsed state.txt.
type Info struct {
	Timestamp        time.Time
	TimestampString   string
	Sequence          sequence.Number
	SequenceString    string
	OriginalSequence  string // upstream OSM sequence, set iff IsGeofabrik
	IsGeofabrik       bool
	Path              sequence.Triplet
}

// Parse reads a state.txt byte buffer into an Info, validating the required
// lines: exactly
// one timestamp= line and exactly one sequenceNumber= line; duplicates or
// missing lines are MalformedStateFile.
func Parse(data []byte) (*Info, error) {
	var (
		timestampLine string
		sequenceLine  string
		originalSeq   string
		isGeofabrik   bool
		sawTimestamp  bool
		sawSequence   bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, originalPrefix):
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			candidate := fields[len(fields)-1]
			if _, err := sequence.Parse(candidate); err == nil {
				originalSeq = candidate
				isGeofabrik = true
			}
		case strings.HasPrefix(line, "#"):
			// other comment lines are tolerated and ignored
		case strings.HasPrefix(line, timestampPrefix):
			if sawTimestamp {
				return nil, malformed("duplicate timestamp= line")
			}
			sawTimestamp = true
			timestampLine = strings.TrimPrefix(line, timestampPrefix)
		case strings.HasPrefix(line, sequencePrefix):
			if sawSequence {
				return nil, malformed("duplicate sequenceNumber= line")
			}
			sawSequence = true
			sequenceLine = strings.TrimPrefix(line, sequencePrefix)
		default:
			// tolerate unknown lines; the format is otherwise free-form
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errkind.Wrap(errkind.ParseError, "reading state file", err)
	}

	if !sawTimestamp || !sawSequence {
		return nil, malformed("missing required timestamp= and/or sequenceNumber= line")
	}

	seq, err := sequence.Parse(sequenceLine)
	if err != nil {
		return nil, malformed(fmt.Sprintf("invalid sequenceNumber value: %q", sequenceLine))
	}

	ts, err := parseTimestamp(timestampLine)
	if err != nil {
		return nil, malformed(fmt.Sprintf("invalid timestamp value: %q", timestampLine))
	}

	return &Info{
		Timestamp:       ts,
		TimestampString: formatTimestamp(ts),
		Sequence:        seq,
		SequenceString:  sequenceLine,
		OriginalSequence: originalSeq,
		IsGeofabrik:     isGeofabrik,
		Path:            sequence.ToPathTriplet(seq),
	}, nil
}

// Serialize renders an Info back into state.txt text. parse(serialize(x))
// must reproduce x's fields.
func (i *Info) Serialize() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", timestampPrefix, formatTimestamp(i.Timestamp))
	fmt.Fprintf(&b, "%s%s\n", sequencePrefix, i.SequenceString)
	if i.IsGeofabrik {
		fmt.Fprintf(&b, "%s %s\n", originalPrefix, i.OriginalSequence)
	}
	return []byte(b.String())
}

// parseTimestamp parses the ISO-8601 "Z" timestamp as UTC, never consulting
// the local timezone.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02T15:04:05Z", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func malformed(msg string) error {
	return errkind.New(errkind.ParseError, "MalformedStateFile: "+msg)
}
