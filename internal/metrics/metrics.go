// Package metrics accumulates per-run counters through a private prometheus
// registry and renders them as text at Done/Aborted. There is no HTTP
// exposition server here — getdiff is a one-shot CLI, not a long-lived
// service, so a registry gathered once at exit is the fit, not promhttp.
package metrics

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Run holds the counters for a single invocation of the orchestrator.
type Run struct {
	registry *prometheus.Registry

	PairsFetched      prometheus.Counter
	BytesDownloaded   prometheus.Counter
	Retries           prometheus.Counter
	CookieReacquires  prometheus.Counter
}

// NewRun builds a fresh, isolated registry for one orchestrator run.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	r := &Run{
		registry: reg,
		PairsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "getdiff_pairs_fetched_total",
			Help: "Number of (diff, state) pairs fetched this run.",
		}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "getdiff_bytes_downloaded_total",
			Help: "Total bytes written to the local mirror this run.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "getdiff_retries_total",
			Help: "Number of HTTP retries performed this run.",
		}),
		CookieReacquires: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "getdiff_cookie_reacquisitions_total",
			Help: "Number of times the auth cookie was re-acquired this run.",
		}),
	}
	reg.MustRegister(r.PairsFetched, r.BytesDownloaded, r.Retries, r.CookieReacquires)
	return r
}

// Render gathers the registry and encodes it in the Prometheus text
// exposition format, for inclusion as a trailing log record.
func (r *Run) Render() (string, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
