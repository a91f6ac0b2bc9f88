package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderIncludesIncrementedCounters(t *testing.T) {
	run := NewRun()
	run.PairsFetched.Inc()
	run.PairsFetched.Inc()
	run.BytesDownloaded.Add(1024)
	run.Retries.Inc()

	rendered, err := run.Render()
	require.NoError(t, err)

	assert.Contains(t, rendered, "getdiff_pairs_fetched_total 2")
	assert.Contains(t, rendered, "getdiff_bytes_downloaded_total 1024")
	assert.Contains(t, rendered, "getdiff_retries_total 1")
	assert.Contains(t, rendered, "getdiff_cookie_reacquisitions_total 0")
}

func TestNewRunIsIsolatedBetweenRuns(t *testing.T) {
	a := NewRun()
	a.PairsFetched.Inc()

	b := NewRun()
	rendered, err := b.Render()
	require.NoError(t, err)
	assert.Contains(t, rendered, "getdiff_pairs_fetched_total 0")
}
