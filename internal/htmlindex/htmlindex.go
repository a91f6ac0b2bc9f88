// Package htmlindex parses a remote replication directory listing into the
// set of entry names it lists. Two dialects are observed in the wild — an
// unordered list of anchors, or a table of anchors — and the parser must
// refuse a page that looks like both (AmbiguousIndex).
package htmlindex

import (
	"regexp"
	"sort"
	"strings"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

var (
	ulLineRe    = regexp.MustCompile(`(?i)<li>\s*<a\s+href="[^"]*">([^<]*)</a>\s*</li>`)
	tableLineRe = regexp.MustCompile(`(?i)<tr>.*<td>\s*<a\s+href="[^"]*">([^<]*)</a>.*</tr>`)
)

// Parse classifies content as one of the two dialects and extracts the
// listed entry names, sorted lexicographically with duplicates suppressed.
// A page containing both <ul> and <table> tags is rejected as ambiguous.
func Parse(content string) ([]string, error) {
	hasUL := strings.Contains(content, "<ul>")
	hasTable := strings.Contains(content, "<table>")

	switch {
	case hasUL && hasTable:
		return nil, errkind.New(errkind.ParseError, "AmbiguousIndex: page contains both <ul> and <table>")
	case hasUL:
		return extract(content, ulLineRe, isDroppedULName), nil
	case hasTable:
		return extract(content, tableLineRe, isDroppedTableName), nil
	default:
		return nil, errkind.New(errkind.ParseError, "AmbiguousIndex: page contains neither <ul> nor <table>")
	}
}

func extract(content string, re *regexp.Regexp, dropped func(string) bool) []string {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(content, "\n") {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" || dropped(name) {
			continue
		}
		if len(name) == 0 || name[0] < '0' || name[0] > '9' {
			continue
		}
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// isDroppedULName filters the unordered-list dialect: entries starting with
// "." (case-sensitive) or literally "Parent" are never diff/state links.
func isDroppedULName(name string) bool {
	return strings.HasPrefix(name, ".") || name == "Parent"
}

// isDroppedTableName filters the table dialect: same "." rule, but the
// parent-directory row is matched by prefix "P" rather than an exact match.
func isDroppedTableName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "P")
}
