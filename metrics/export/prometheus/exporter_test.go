package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/dashauth"
	"github.com/MrEthical07/dashauth/store"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot dashauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() dashauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

type nopBackend struct{}

func (nopBackend) Load(context.Context) (*store.CredentialStore, error) {
	return store.New(store.CookiePolicy{}), nil
}

func (nopBackend) Save(context.Context, *store.CredentialStore) error { return nil }

func emptySnapshot() dashauth.MetricsSnapshot {
	return dashauth.MetricsSnapshot{
		Counters:   map[dashauth.MetricID]uint64{},
		Histograms: map[dashauth.MetricID][]uint64{},
	}
}

func TestCollectNothingWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: emptySnapshot()})

	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestCollectCounters(t *testing.T) {
	snap := emptySnapshot()
	snap.Counters[dashauth.MetricLoginSuccess] = 7
	snap.Counters[dashauth.MetricStoreSaveFailure] = 1
	c := NewCollectorFromSource(fakeSource{snapshot: snap, dropped: 2})

	expected := `
# HELP dashauth_login_success_total Successful credential logins.
# TYPE dashauth_login_success_total counter
dashauth_login_success_total 7
# HELP dashauth_store_save_failure_total Failed credential store writes.
# TYPE dashauth_store_save_failure_total counter
dashauth_store_save_failure_total 1
# HELP dashauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE dashauth_audit_dropped_total counter
dashauth_audit_dropped_total 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"dashauth_login_success_total",
		"dashauth_store_save_failure_total",
		"dashauth_audit_dropped_total",
	)
	require.NoError(t, err)
}

func TestCollectHistogramIsCumulative(t *testing.T) {
	snap := emptySnapshot()
	snap.Histograms[dashauth.MetricInvocationLatency] = []uint64{1, 2, 3, 4, 5, 6, 7, 8}
	c := NewCollectorFromSource(fakeSource{snapshot: snap})

	reg := prom.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "dashauth_invocation_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(36), h.GetSampleCount())
		buckets := h.GetBucket()
		require.Len(t, buckets, 7)
		assert.Equal(t, 0.005, buckets[0].GetUpperBound())
		assert.Equal(t, uint64(1), buckets[0].GetCumulativeCount())
		assert.Equal(t, uint64(28), buckets[6].GetCumulativeCount())
	}
	assert.True(t, found, "histogram not gathered")
}

func TestCollectorReadsEngine(t *testing.T) {
	e, err := dashauth.New().
		WithBackend(nopBackend{}).
		WithMetricsEnabled(true).
		Build()
	require.NoError(t, err)
	defer e.Close()

	c := NewCollector(e)
	assert.Greater(t, testutil.CollectAndCount(c), 0)
}

func TestHandlerServesExposition(t *testing.T) {
	snap := emptySnapshot()
	snap.Counters[dashauth.MetricLogout] = 3
	h, err := Handler(NewCollectorFromSource(fakeSource{snapshot: snap}))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "dashauth_logout_total 3")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
