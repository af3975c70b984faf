package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "specdriver"

// DriverMetrics holds the series recorded by the driver core.
// All methods are safe to call on a nil *DriverMetrics, which records nothing.
type DriverMetrics struct {
	signals          CounterVec
	events           CounterVec
	listenerFailures CounterVec
	requests         CounterVec
	requestFailures  CounterVec
	pending          GaugeVec
	evictions        Counter
	retained         Gauge
}

// NewDriverMetrics creates and registers the driver series with reg.
func NewDriverMetrics(reg Registry) (*DriverMetrics, error) {
	m := &DriverMetrics{}
	var err error

	if m.signals, err = reg.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_total",
		Help:      "Lifecycle signals received by the action gateway.",
	}, []string{"signal"}); err != nil {
		return nil, fmt.Errorf("creating signals counter: %w", err)
	}

	if m.events, err = reg.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_emitted_total",
		Help:      "Public events dispatched on the event bus.",
	}, []string{"event", "mode"}); err != nil {
		return nil, fmt.Errorf("creating events counter: %w", err)
	}

	if m.listenerFailures, err = reg.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listener_failures_total",
		Help:      "Event listeners that panicked or rejected.",
	}, []string{"event"}); err != nil {
		return nil, fmt.Errorf("creating listener failures counter: %w", err)
	}

	if m.requests, err = reg.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_requests_total",
		Help:      "Requests sent to the host process.",
	}, []string{"origin"}); err != nil {
		return nil, fmt.Errorf("creating bridge requests counter: %w", err)
	}

	if m.requestFailures, err = reg.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_failures_total",
		Help:      "Requests the host process answered with an error.",
	}, []string{"origin"}); err != nil {
		return nil, fmt.Errorf("creating bridge failures counter: %w", err)
	}

	if m.pending, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bridge_pending_requests",
		Help:      "Requests awaiting a reply from the host process.",
	}, []string{"origin"}); err != nil {
		return nil, fmt.Errorf("creating pending requests gauge: %w", err)
	}

	if m.evictions, err = reg.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_evictions_total",
		Help:      "Test records evicted from the execution history.",
	}); err != nil {
		return nil, fmt.Errorf("creating evictions counter: %w", err)
	}

	if m.retained, err = reg.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_retained_tests",
		Help:      "Test records currently retained in the execution history.",
	}); err != nil {
		return nil, fmt.Errorf("creating retained gauge: %w", err)
	}

	return m, nil
}

// SignalReceived counts a gateway signal.
func (m *DriverMetrics) SignalReceived(signal string) {
	if m == nil {
		return
	}
	m.signals.With(prometheus.Labels{"signal": signal}).Inc()
}

// EventEmitted counts a bus dispatch. mode is one of emit, emit_then or emit_map.
func (m *DriverMetrics) EventEmitted(event, mode string) {
	if m == nil {
		return
	}
	m.events.With(prometheus.Labels{"event": event, "mode": mode}).Inc()
}

// ListenerFailed counts a failed listener.
func (m *DriverMetrics) ListenerFailed(event string) {
	if m == nil {
		return
	}
	m.listenerFailures.With(prometheus.Labels{"event": event}).Inc()
}

// RequestSent counts a bridge request.
func (m *DriverMetrics) RequestSent(origin string) {
	if m == nil {
		return
	}
	m.requests.With(prometheus.Labels{"origin": origin}).Inc()
}

// RequestFailed counts a bridge request answered with an error.
func (m *DriverMetrics) RequestFailed(origin string) {
	if m == nil {
		return
	}
	m.requestFailures.With(prometheus.Labels{"origin": origin}).Inc()
}

// SetPending records the number of outstanding requests for origin.
func (m *DriverMetrics) SetPending(origin string, n int) {
	if m == nil {
		return
	}
	m.pending.With(prometheus.Labels{"origin": origin}).Set(float64(n))
}

// HistoryTrimmed records an eviction pass over the execution history.
func (m *DriverMetrics) HistoryTrimmed(evicted, retained int) {
	if m == nil {
		return
	}
	if evicted > 0 {
		m.evictions.Add(float64(evicted))
	}
	m.retained.Set(float64(retained))
}
