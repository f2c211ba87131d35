package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveRebuild(0.001, 4, 6)
	m.ObserveRebuild(0.002, 5, 8)
	m.ObserveLookup("ok")
	m.ObserveLookup("ok")
	m.ObserveLookup("no_route")
	m.ObserveDecision("table_relay")
	m.ObserveDeflection(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rebuilds))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.TableNodes))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.ReachablePairs))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Lookups.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("no_route")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("table_relay")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRebuild(1, 1, 1)
	m.ObserveLookup("ok")
	m.ObserveDecision("drop")
	m.ObserveDeflection(1)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveDecision("broadcast")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `modrouting_forwarding_decisions_total{action="broadcast"} 1`)
}
