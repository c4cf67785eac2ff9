package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestExporterCounts(t *testing.T) {
	e := NewExporter(DefaultConfig())

	e.RecordTask("local", "normal", "completed")
	e.RecordTask("local", "normal", "completed")
	e.SetQueueDepth(3)
	e.RecordStreamToken("cloud")
	e.RecordProviderRequest("openai", 200)
	e.RecordProviderRequest("openai", 429)

	require.Equal(t, float64(2), testutil.ToFloat64(e.tasksTotal.WithLabelValues("local", "normal", "completed")))
	require.Equal(t, float64(3), testutil.ToFloat64(e.queueDepth))
	require.Equal(t, float64(1), testutil.ToFloat64(e.streamTokens.WithLabelValues("cloud")))
	require.Equal(t, float64(1), testutil.ToFloat64(e.providerRequests.WithLabelValues("openai", "429")))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	e := NewExporter(DefaultConfig())
	e.RecordTask("local", "background", "completed")
	e.RecordDispatchLatency("local", 42*time.Millisecond)
	e.RecordRetrieval(5 * time.Millisecond)

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	require.Contains(t, body, "waspd_router_tasks_total")
	require.Contains(t, body, "waspd_router_dispatch_latency_seconds")
	require.Contains(t, body, "waspd_memory_retrieval_latency_seconds")
}

func TestNilExporterIsSafe(t *testing.T) {
	var e *Exporter

	require.NotPanics(t, func() {
		e.RecordTask("local", "normal", "completed")
		e.SetQueueDepth(1)
		e.RecordDispatchLatency("local", time.Millisecond)
		e.RecordStreamToken("local")
		e.RecordRetrieval(time.Millisecond)
		e.RecordProviderRequest("openai", 500)
	})
}
