// Package sequence models the replication sequence number: parsing and
// formatting its decimal string form, and deriving the AAA/BBB/CCC path
// triplet a remote server uses to lay out diff files.
package sequence

import (
	"fmt"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

// Max is the largest sequence number the stream is expected to carry.
// The stream zero-pads to 9 digits; next() past
// this value is a fatal overflow, never silently wrapped.
const Max Number = 999_999_999

// Number is a replication sequence number.
type Number uint32

// Parse validates and converts a decimal string into a Number. Matches
// 1..9 digits, all decimal, and no
// leading zero unless the string is exactly "0".
func Parse(s string) (Number, error) {
	if len(s) == 0 || len(s) > 9 {
		return 0, errkind.New(errkind.ParseError, fmt.Sprintf("invalid sequence string length: %q", s))
	}
	if s[0] == '0' && len(s) != 1 {
		return 0, errkind.New(errkind.ParseError, fmt.Sprintf("sequence string has leading zero: %q", s))
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, errkind.New(errkind.ParseError, fmt.Sprintf("non-digit in sequence string: %q", s))
		}
		n = n*10 + uint64(c-'0')
	}
	if n > uint64(Max) {
		return 0, errkind.New(errkind.ParseError, fmt.Sprintf("sequence number exceeds maximum: %q", s))
	}
	return Number(n), nil
}

// Format renders n as its minimal decimal string, no leading zeros.
func Format(n Number) string {
	return fmt.Sprintf("%d", uint32(n))
}

// CanonicalPadded renders n zero-padded to 9 digits, the form path
// triplets are derived from.
func CanonicalPadded(n Number) string {
	return fmt.Sprintf("%09d", uint32(n))
}

// Next returns n+1, or an Overflow error if that would exceed Max.
func Next(n Number) (Number, error) {
	if n >= Max {
		return 0, errkind.New(errkind.FatalInternal, "sequence overflow: stream exceeded 999999999")
	}
	return n + 1, nil
}

// Triplet is the deterministic AAA/BBB/CCC decomposition of a sequence
// number's zero-padded form.
type Triplet struct {
	Root   string // first 3 digits
	Parent string // next 3 digits
	File   string // last 3 digits
}

// ToPathTriplet derives the path triplet for n.
func ToPathTriplet(n Number) Triplet {
	p := CanonicalPadded(n)
	return Triplet{
		Root:   p[0:3],
		Parent: p[3:6],
		File:   p[6:9],
	}
}

// RemotePath is root/parent/file with forward slashes, the directory
// component of the remote diff/state URLs.
func (t Triplet) RemotePath() string {
	return t.Root + "/" + t.Parent + "/" + t.File
}

// LocalDir is the same decomposition used to build the local mirror
// directory tree (root/parent), excluding the file component which is a
// filename, not a directory.
func (t Triplet) LocalDir() string {
	return t.Root + "/" + t.Parent
}
