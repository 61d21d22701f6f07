package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSnapshot("sessions")
	c.RecordSnapshot("sessions")
	c.RecordSnapshot("conversations")
	c.RecordArbitrationLoss()
	c.RecordStaleSessionDelete(true)
	c.RecordStaleSessionDelete(false)
	c.RecordRefresh(RefreshFetched)
	c.RecordRefresh(RefreshDeferred)
	c.RecordRefresh(RefreshDeferred)
	c.RecordBackfillPatch(true)
	c.RecordNotificationShown()
	c.RecordSendFailure()
	c.RecordRefreshLatency(20 * time.Millisecond)

	assert.Equal(t, 2.0, promtest.ToFloat64(c.snapshots.WithLabelValues("sessions")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.snapshots.WithLabelValues("conversations")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.arbitrationLoss))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.staleDeletes.WithLabelValues("error")))
	assert.Equal(t, 2.0, promtest.ToFloat64(c.refreshes.WithLabelValues(RefreshDeferred)))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.backfills.WithLabelValues("ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.notifications))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.sendFailures))
	assert.Equal(t, 1, promtest.CollectAndCount(c.refreshLatency))
}

func TestNewServeMux_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordArbitrationLoss()

	srv := httptest.NewServer(NewServeMux(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tandem_arbitration_losses_total 1")
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordSnapshot("x")
	r.RecordRefresh(RefreshFailed)
}
