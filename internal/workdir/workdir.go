// Package workdir materializes and resolves the on-disk layout of a getdiff
// working directory: the getdiff/ skeleton, its persistent file names, and
// the per-source mirror root (geofabrik/ or planet/{minute,hour,day}/).
package workdir

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

// Dir resolves every path a running process needs under a caller-supplied
// root directory.
type Dir struct {
	Root string // caller-supplied root
	Base string // Root/getdiff

	Lock            string
	Log             string
	PreviousSeq     string
	LatestState     string
	NewerFiles      string
	RangeList       string
	Tmp             string
	GeofabrikMirror string
	PlanetMinute    string
	PlanetHour      string
	PlanetDay       string
}

const dirMode = 0o755

// New resolves (but does not create) the layout rooted at root.
func New(root string) *Dir {
	base := filepath.Join(root, "getdiff")
	tmp := filepath.Join(base, "tmp")
	return &Dir{
		Root:            root,
		Base:            base,
		Lock:            filepath.Join(base, "getdiff.lock"),
		Log:             filepath.Join(base, "getdiff.log"),
		PreviousSeq:     filepath.Join(base, "previous.seq"),
		LatestState:     filepath.Join(tmp, "latest.state.txt"),
		NewerFiles:      filepath.Join(base, "newerFiles.txt"),
		RangeList:       filepath.Join(base, "rangeList.txt"),
		Tmp:             tmp,
		GeofabrikMirror: filepath.Join(base, "geofabrik"),
		PlanetMinute:    filepath.Join(base, "planet", "minute"),
		PlanetHour:      filepath.Join(base, "planet", "hour"),
		PlanetDay:       filepath.Join(base, "planet", "day"),
	}
}

// Create materializes the working-directory skeleton: getdiff/, tmp/,
// geofabrik/, planet/{minute,hour,day}/, each owner-writable and
// group/other readable-executable.
func (d *Dir) Create() error {
	dirs := []string{
		d.Base, d.Tmp, d.GeofabrikMirror,
		filepath.Dir(d.PlanetMinute), // planet/
		d.PlanetMinute, d.PlanetHour, d.PlanetDay,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return errkind.Wrap(errkind.IoError, "creating working directory skeleton", err)
		}
	}
	return nil
}

// Source classifies a replication source URL into which mirror root its
// downloads belong under, and whether it's an internal Geofabrik host
// requiring authentication.
type Source struct {
	URL          string
	MirrorRoot   string
	IsInternal   bool
	IsGeofabrik  bool
}

const internalHost = "osm-internal.download.geofabrik.de"

// ClassifySource determines the mirror root and auth requirement for a
// replication source URL.
func (d *Dir) ClassifySource(rawURL string) (*Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errkind.Wrap(errkind.ArgError, "parsing source URL", err)
	}
	if u.Host == "" || u.Path == "" || u.Path == "/" {
		return nil, errkind.New(errkind.ArgError, "source URL must include a non-empty host and path")
	}

	host := strings.ToLower(u.Host)
	s := &Source{URL: rawURL}

	switch {
	case host == internalHost:
		s.IsInternal = true
		s.IsGeofabrik = true
		s.MirrorRoot = d.GeofabrikMirror
	case strings.Contains(host, "geofabrik.de"):
		s.IsGeofabrik = true
		s.MirrorRoot = d.GeofabrikMirror
	case strings.Contains(host, "planet.osm.org"), strings.Contains(host, "planet.openstreetmap.org"):
		switch {
		case strings.Contains(u.Path, "/hour"):
			s.MirrorRoot = d.PlanetHour
		case strings.Contains(u.Path, "/day"):
			s.MirrorRoot = d.PlanetDay
		default:
			s.MirrorRoot = d.PlanetMinute
		}
	default:
		// Unrecognized host: mirror it under geofabrik/ (the generic,
		// non-authenticated region-update layout) rather than fail outright.
		s.MirrorRoot = d.GeofabrikMirror
	}
	return s, nil
}
