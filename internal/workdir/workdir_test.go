package workdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMaterializesSkeleton(t *testing.T) {
	root := t.TempDir()
	d := New(root)

	require.NoError(t, d.Create())

	for _, p := range []string{d.Base, d.Tmp, d.GeofabrikMirror, d.PlanetMinute, d.PlanetHour, d.PlanetDay} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewResolvesPersistentFileNames(t *testing.T) {
	d := New("/srv")
	assert.Equal(t, filepath.Join("/srv", "getdiff", "getdiff.lock"), d.Lock)
	assert.Equal(t, filepath.Join("/srv", "getdiff", "previous.seq"), d.PreviousSeq)
	assert.Equal(t, filepath.Join("/srv", "getdiff", "newerFiles.txt"), d.NewerFiles)
}

func TestClassifySourceInternalGeofabrik(t *testing.T) {
	d := New(t.TempDir())
	src, err := d.ClassifySource("https://osm-internal.download.geofabrik.de/europe-updates")
	require.NoError(t, err)
	assert.True(t, src.IsInternal)
	assert.True(t, src.IsGeofabrik)
	assert.Equal(t, d.GeofabrikMirror, src.MirrorRoot)
}

func TestClassifySourcePublicGeofabrik(t *testing.T) {
	d := New(t.TempDir())
	src, err := d.ClassifySource("https://download.geofabrik.de/europe-updates")
	require.NoError(t, err)
	assert.False(t, src.IsInternal)
	assert.True(t, src.IsGeofabrik)
}

func TestClassifySourcePlanetMinuteHourDay(t *testing.T) {
	d := New(t.TempDir())

	minute, err := d.ClassifySource("https://planet.openstreetmap.org/replication/minute")
	require.NoError(t, err)
	assert.Equal(t, d.PlanetMinute, minute.MirrorRoot)

	hour, err := d.ClassifySource("https://planet.openstreetmap.org/replication/hour")
	require.NoError(t, err)
	assert.Equal(t, d.PlanetHour, hour.MirrorRoot)

	day, err := d.ClassifySource("https://planet.openstreetmap.org/replication/day")
	require.NoError(t, err)
	assert.Equal(t, d.PlanetDay, day.MirrorRoot)
}

func TestClassifySourceRejectsEmptyPath(t *testing.T) {
	d := New(t.TempDir())
	_, err := d.ClassifySource("https://download.geofabrik.de")
	require.Error(t, err)
}

func TestClassifySourceRejectsUnparseable(t *testing.T) {
	d := New(t.TempDir())
	_, err := d.ClassifySource("://bad-url")
	require.Error(t, err)
}
