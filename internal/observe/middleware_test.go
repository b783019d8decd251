package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// statusServer wraps a handler that answers every request with status, the
// way the health endpoints do.
func statusServer(t *testing.T, status int, log *slog.Logger) (http.Handler, *sdkmetric.ManualReader, *string) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	var seen string
	h := Middleware(m, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
		w.WriteHeader(status)
	}))
	return h, reader, &seen
}

func TestMiddleware_TraceAndCorrelationHeader(t *testing.T) {
	exp := useTracer(t)
	h, _, seen := statusServer(t, http.StatusServiceUnavailable, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if *seen == "" || rec.Header().Get("X-Correlation-ID") != *seen {
		t.Errorf("X-Correlation-ID = %q, handler saw %q", rec.Header().Get("X-Correlation-ID"), *seen)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /readyz" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var code int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			code = a.Value.AsInt64()
		}
	}
	if code != http.StatusServiceUnavailable {
		t.Errorf("span status code attribute = %d, want 503", code)
	}
}

func TestMiddleware_JoinsIncomingTrace(t *testing.T) {
	useTracer(t)
	h, _, seen := statusServer(t, http.StatusOK, nil)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if *seen != traceID {
		t.Errorf("handler trace = %q, want %q", *seen, traceID)
	}
	if !strings.Contains(rec.Header().Get("traceparent"), traceID) {
		t.Errorf("response traceparent = %q", rec.Header().Get("traceparent"))
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	useTracer(t)
	h, reader, _ := statusServer(t, http.StatusOK, nil)

	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "podwright.http.request.duration")
	if met == nil {
		t.Fatal("podwright.http.request.duration not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	if v, _ := dp.Attributes.Value("path"); v.AsString() != "/metrics" {
		t.Errorf("path attribute = %q", v.AsString())
	}
	if v, _ := dp.Attributes.Value("method"); v.AsString() != http.MethodGet {
		t.Errorf("method attribute = %q", v.AsString())
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	useTracer(t)
	tests := []struct {
		name   string
		path   string
		status int
		logged bool
	}{
		{name: "healthy probe", path: "/healthz", status: http.StatusOK, logged: false},
		{name: "scrape", path: "/metrics", status: http.StatusOK, logged: false},
		{name: "failing probe", path: "/readyz", status: http.StatusServiceUnavailable, logged: true},
		{name: "other path", path: "/debug", status: http.StatusNotFound, logged: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
			h, _, _ := statusServer(t, tt.status, log)
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if got := strings.Contains(buf.String(), "path="+tt.path); got != tt.logged {
				t.Errorf("logged at info = %v, want %v: %s", got, tt.logged, buf.String())
			}
		})
	}
}
