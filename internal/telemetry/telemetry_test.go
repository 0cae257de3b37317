package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JakeFAU/progressd/internal/config"
)

func TestInitTelemetryIdempotent(t *testing.T) {
	cfg := config.Config{}

	tp1, mp1, err := InitTelemetry(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("InitTelemetry() error = %v", err)
	}
	tp2, mp2, err := InitTelemetry(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("InitTelemetry() second call error = %v", err)
	}
	if tp1 != tp2 || mp1 != mp2 {
		t.Fatal("expected repeated InitTelemetry calls to return the same providers")
	}
}

func TestObserveHelpers(t *testing.T) {
	ObserveTask("started")
	if val := testutil.ToFloat64(tasksTotal.WithLabelValues("started")); val < 1 {
		t.Errorf("expected progressd_tasks_total{status=started} >= 1, got %f", val)
	}

	ObserveSinkError("stub")
	if val := testutil.ToFloat64(sinkErrorsTotal.WithLabelValues("stub")); val != 1 {
		t.Errorf("expected progressd_sink_errors_total{sink=stub} = 1, got %f", val)
	}

	ObserveRecordDropped()
	if val := testutil.ToFloat64(recordsDroppedTotal); val < 1 {
		t.Errorf("expected progressd_records_dropped_total >= 1, got %f", val)
	}

	IncActiveDeliveries()
	DecActiveDeliveries()
	if val := testutil.ToFloat64(activeDeliveries); val != 0 {
		t.Errorf("expected progressd_active_deliveries to return to 0, got %f", val)
	}
}

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/notfound", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	// Make requests to the test server.
	resp, err := http.Get(ts.URL + "/test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if errInner := resp.Body.Close(); errInner != nil {
			t.Log(errInner)
		}
	}()

	resp, err = http.Get(ts.URL + "/notfound")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if errInner := resp.Body.Close(); errInner != nil {
			t.Log(errInner)
		}
	}()

	// Check the metrics.
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); val != 1 {
		t.Errorf("Expected httpRequestsTotal for GET /test to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")); val != 1 {
		t.Errorf("Expected httpRequestsTotal for GET /notfound to be 1, got %f", val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
