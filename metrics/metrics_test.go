package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteServer decodes every remote write request it receives.
func remoteWriteServer(t *testing.T) (*httptest.Server, chan []prompb.TimeSeries) {
	t.Helper()
	received := make(chan []prompb.TimeSeries, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var writeReq prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &writeReq))

		received <- writeReq.Timeseries
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestNewPushRegistry(t *testing.T) {
	tests := []struct {
		name string
		cfg  PushConfig
	}{
		{
			name: "minimal config",
			cfg: PushConfig{
				URL: "http://localhost:9090",
			},
		},
		{
			name: "full config",
			cfg: PushConfig{
				URL:      "http://localhost:9090/",
				Prefix:   "test",
				Job:      "testjob",
				Instance: "testinstance",
				Timeout:  5 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewPushRegistry(tt.cfg)
			require.NotNil(t, registry)
			require.NotNil(t, registry.pusher)
			assert.Equal(t, "http://localhost:9090/api/v1/write", registry.pusher.url)
		})
	}
}

func TestPushRegistry_FlushEmpty(t *testing.T) {
	server, received := remoteWriteServer(t)
	registry := NewPushRegistry(PushConfig{URL: server.URL})

	_, err := registry.NewGauge(prometheus.GaugeOpts{Name: "unset"})
	require.NoError(t, err)

	require.NoError(t, registry.Flush(context.Background()))
	assert.Empty(t, received)
}

func TestPushGauge_Set(t *testing.T) {
	server, received := remoteWriteServer(t)

	registry := NewPushRegistry(PushConfig{
		URL:      server.URL,
		Prefix:   "test",
		Job:      "testjob",
		Instance: "testinstance",
	})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "test_metric",
		Help: "A test metric",
	})
	require.NoError(t, err)
	gauge.Set(1)
	gauge.Set(42.0)

	require.NoError(t, registry.Flush(context.Background()))

	select {
	case series := <-received:
		require.Len(t, series, 1)
		ts := series[0]
		assert.Equal(t, "test_test_metric", findLabel(ts.Labels, "__name__"))
		assert.Equal(t, "testjob", findLabel(ts.Labels, "job"))
		assert.Equal(t, "testinstance", findLabel(ts.Labels, "instance"))
		require.Len(t, ts.Samples, 1)
		assert.Equal(t, 42.0, ts.Samples[0].Value)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to be received")
	}
}

func TestPushVecs_LabelledSeries(t *testing.T) {
	server, received := remoteWriteServer(t)
	registry := NewPushRegistry(PushConfig{URL: server.URL})

	counterVec, err := registry.NewCounterVec(prometheus.CounterOpts{
		Namespace: "specdriver",
		Name:      "signals_total",
	}, []string{"signal"})
	require.NoError(t, err)

	gaugeVec, err := registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pending",
	}, []string{"origin"})
	require.NoError(t, err)

	counterVec.With(prometheus.Labels{"signal": "runner:start"}).Inc()
	counterVec.With(prometheus.Labels{"signal": "runner:start"}).Inc()
	counterVec.With(prometheus.Labels{"signal": "runner:end"}).Add(3)
	gaugeVec.With(prometheus.Labels{"origin": "backend"}).Set(2)

	require.NoError(t, registry.Flush(context.Background()))

	series := <-received
	require.Len(t, series, 3)

	values := make(map[string]float64)
	for _, ts := range series {
		key := findLabel(ts.Labels, "__name__") + "/" + findLabel(ts.Labels, "signal") + findLabel(ts.Labels, "origin")
		require.Len(t, ts.Samples, 1)
		values[key] = ts.Samples[0].Value
	}

	assert.Equal(t, map[string]float64{
		"specdriver_signals_total/runner:start": 2,
		"specdriver_signals_total/runner:end":   3,
		"pending/backend":                       2,
	}, values)
}

func TestPushRegistry_FlushError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})
	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "c"})
	require.NoError(t, err)
	counter.Inc()

	err = registry.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestPushCounter_NegativePanics(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost:9090"})
	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "c"})
	require.NoError(t, err)

	assert.Panics(t, func() { counter.Add(-1) })
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry(false)
	require.NoError(t, err)
	require.NotNil(t, registry)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})
	require.NoError(t, err)
	counter.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "test_gauge 42")
	assert.Contains(t, body, "test_counter 1")
}

func TestScrapeRegistry_DuplicateRegistration(t *testing.T) {
	registry, err := NewScrapeRegistry(false)
	require.NoError(t, err)

	_, err = registry.NewCounter(prometheus.CounterOpts{Name: "dup"})
	require.NoError(t, err)

	_, err = registry.NewCounter(prometheus.CounterOpts{Name: "dup"})
	assert.Error(t, err)
}

func TestDriverMetrics(t *testing.T) {
	registry, err := NewScrapeRegistry(false)
	require.NoError(t, err)

	m, err := NewDriverMetrics(registry)
	require.NoError(t, err)

	m.SignalReceived("runner:start")
	m.EventEmitted("run:start", "emit")
	m.ListenerFailed("run:start")
	m.RequestSent("backend")
	m.RequestFailed("backend")
	m.SetPending("backend", 3)
	m.HistoryTrimmed(2, 5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)
	body := w.Body.String()

	assert.Contains(t, body, `specdriver_signals_total{signal="runner:start"} 1`)
	assert.Contains(t, body, `specdriver_events_emitted_total{event="run:start",mode="emit"} 1`)
	assert.Contains(t, body, `specdriver_listener_failures_total{event="run:start"} 1`)
	assert.Contains(t, body, `specdriver_bridge_requests_total{origin="backend"} 1`)
	assert.Contains(t, body, `specdriver_bridge_failures_total{origin="backend"} 1`)
	assert.Contains(t, body, `specdriver_bridge_pending_requests{origin="backend"} 3`)
	assert.Contains(t, body, `specdriver_history_evictions_total 2`)
	assert.Contains(t, body, `specdriver_history_retained_tests 5`)
}

func TestDriverMetrics_PushNamesMatchScrapeNames(t *testing.T) {
	server, received := remoteWriteServer(t)
	push := NewPushRegistry(PushConfig{URL: server.URL, Prefix: "specdriver"})
	pushed, err := NewDriverMetrics(push)
	require.NoError(t, err)

	scrape, err := NewScrapeRegistry(false)
	require.NoError(t, err)
	scraped, err := NewDriverMetrics(scrape)
	require.NoError(t, err)

	pushed.SignalReceived("runner:start")
	scraped.SignalReceived("runner:start")
	require.NoError(t, push.Flush(context.Background()))

	series := <-received
	require.Len(t, series, 1)
	name := findLabel(series[0].Labels, "__name__")
	assert.Equal(t, "specdriver_signals_total", name)

	w := httptest.NewRecorder()
	scrape.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), name+`{signal="runner:start"} 1`)
}

func TestDriverMetrics_NilIsNoop(t *testing.T) {
	var m *DriverMetrics

	assert.NotPanics(t, func() {
		m.SignalReceived("x")
		m.EventEmitted("x", "emit")
		m.ListenerFailed("x")
		m.RequestSent("backend")
		m.RequestFailed("backend")
		m.SetPending("backend", 1)
		m.HistoryTrimmed(1, 1)
	})
}
