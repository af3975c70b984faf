package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
)

// PushRegistry implements Registry for push-based metrics collection.
// Values are buffered in memory and sent to a Prometheus remote write
// endpoint by Flush, one WriteRequest per flush.
type PushRegistry struct {
	pusher *pusher
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:9090").
	URL string
	// Prefix is the namespace given to metrics created without one. Metrics
	// that set a Namespace keep it, so pushed names match scraped names.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	p := &pusher{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		series:     make(map[string]*series),
	}
	return &PushRegistry{pusher: p}
}

// Flush sends the current value of every series touched since creation.
// Series with no recorded value are skipped; an empty registry sends nothing.
func (r *PushRegistry) Flush(ctx context.Context) error {
	return r.pusher.flush(ctx)
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{s: r.pusher.seriesFor(r.pusher.fullName(opts.Namespace, opts.Subsystem, opts.Name), nil)}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{
		pusher: r.pusher,
		name:   r.pusher.fullName(opts.Namespace, opts.Subsystem, opts.Name),
	}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{s: r.pusher.seriesFor(r.pusher.fullName(opts.Namespace, opts.Subsystem, opts.Name), nil)}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{
		pusher: r.pusher,
		name:   r.pusher.fullName(opts.Namespace, opts.Subsystem, opts.Name),
	}, nil
}

func (p *pusher) fullName(namespace, subsystem, name string) string {
	if namespace == "" {
		namespace = p.prefix
	}
	return prometheus.BuildFQName(namespace, subsystem, name)
}

// series is one labelled time series buffered for the next flush.
type series struct {
	mu     sync.Mutex
	name   string
	labels map[string]string
	value  float64
	set    bool
	at     time.Time
}

func (s *series) update(f func(float64) float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = f(s.value)
	s.set = true
	s.at = time.Now()
}

// pusher handles remote write to Prometheus compatible endpoints.
type pusher struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string

	mu     sync.Mutex
	series map[string]*series
}

func (p *pusher) seriesFor(name string, labels map[string]string) *series {
	key := name + "{" + labelsToKey(labels) + "}"

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.series[key]; ok {
		return s
	}
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	s := &series{name: name, labels: copied}
	p.series[key] = s
	return s
}

func (p *pusher) flush(ctx context.Context) error {
	p.mu.Lock()
	keys := make([]string, 0, len(p.series))
	for k := range p.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	timeseries := make([]prompb.TimeSeries, 0, len(keys))
	for _, k := range keys {
		s := p.series[k]
		s.mu.Lock()
		if s.set {
			timeseries = append(timeseries, p.metricToTimeSeries(s.name, s.value, s.labels, s.at))
		}
		s.mu.Unlock()
	}
	p.mu.Unlock()

	if len(timeseries) == 0 {
		return nil
	}

	req := &prompb.WriteRequest{
		Timeseries: timeseries,
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// metricToTimeSeries converts a metric to Prometheus TimeSeries format.
func (p *pusher) metricToTimeSeries(name string, value float64, labels map[string]string, at time.Time) prompb.TimeSeries {
	promLabels := make([]prompb.Label, 0, len(labels)+3)

	promLabels = append(promLabels, prompb.Label{
		Name:  "__name__",
		Value: name,
	})

	if p.job != "" {
		promLabels = append(promLabels, prompb.Label{
			Name:  "job",
			Value: p.job,
		})
	}
	if p.instance != "" {
		promLabels = append(promLabels, prompb.Label{
			Name:  "instance",
			Value: p.instance,
		})
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		promLabels = append(promLabels, prompb.Label{
			Name:  k,
			Value: labels[k],
		})
	}

	return prompb.TimeSeries{
		Labels: promLabels,
		Samples: []prompb.Sample{{
			Value:     value,
			Timestamp: at.UnixMilli(),
		}},
	}
}

type pushGauge struct {
	s *series
}

func (g *pushGauge) Set(v float64) {
	g.s.update(func(float64) float64 { return v })
}

type pushGaugeVec struct {
	pusher *pusher
	name   string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{s: g.pusher.seriesFor(g.name, labels)}
}

type pushCounter struct {
	s *series
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.s.update(func(cur float64) float64 { return cur + v })
}

type pushCounterVec struct {
	pusher *pusher
	name   string
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	return &pushCounter{s: c.pusher.seriesFor(c.name, labels)}
}

// labelsToKey creates a stable string key from labels for map lookup.
func labelsToKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
