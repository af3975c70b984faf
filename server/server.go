// Package server provides the HTTP server of the specdriver daemon.
//
// The server hosts one driver, the host link the host process dials into,
// and a small REST API to inspect and drive it.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /metrics - Prometheus metrics (scrape mode only)
//   - GET /host - Host link websocket
//   - GET /api/version - Build properties
//   - GET /api/status - Host link, resumption and schedule status
//   - GET /api/config - Current configuration as YAML
//   - POST /api/reload - Reloads configuration from disk
//   - GET /api/state - Contents of the driver's stores
//   - GET /api/history - Retained test history
//   - GET /api/history/{testID} - One test's record
//   - POST /api/action - Dispatches a signal
//
// # Maintenance jobs
//
// When server.cron is set, the named jobs run on their schedules:
// "snapshot" writes the test history to history.state_dir and "flush"
// pushes buffered metrics to metrics.remote_write_url.
//
// # Example
//
//	srv, err := server.New("/etc/specdriver/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nomis52/specdriver/bridge"
	"github.com/nomis52/specdriver/config"
	"github.com/nomis52/specdriver/driver"
	"github.com/nomis52/specdriver/gateway"
	"github.com/nomis52/specdriver/history"
	"github.com/nomis52/specdriver/hostlink"
	"github.com/nomis52/specdriver/logging"
	"github.com/nomis52/specdriver/metrics"
	"github.com/nomis52/specdriver/server/cron"
	"github.com/nomis52/specdriver/server/handlers"
)

const defaultReadTimeout = 10 * time.Second

// Job names accepted in server.cron.
const (
	JobSnapshot = "snapshot"
	JobFlush    = "flush"
)

// forwardedEvents are the public events sent to the host over the link.
var forwardedEvents = []string{
	gateway.EventConfig,
	gateway.EventStop,
	gateway.EventRunStart,
	gateway.EventRunEnd,
	gateway.EventMocha,
	gateway.EventTestAfterRun,
	gateway.EventLogAdded,
	gateway.EventLogChanged,
	gateway.EventFail,
}

// Server is the HTTP server of the specdriver daemon.
type Server struct {
	configPath string
	addr       string
	document   driver.Document

	config      atomic.Pointer[config.Config]
	logger      *logging.Logger
	scrape      *metrics.ScrapeRegistry
	push        *metrics.PushRegistry
	driver      *driver.Driver
	link        *hostlink.Link
	snapshotter *history.Snapshotter
	certs       *certLoader
	cron        *cron.Manager
	httpServer  *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr overrides server.addr from the config file.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithDocument sets the page document the driver applies the remote domain to.
func WithDocument(doc driver.Document) Option {
	return func(s *Server) error {
		s.document = doc
		return nil
	}
}

// New creates a new Server from the config file at configPath.
func New(configPath string, opts ...Option) (*Server, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, configPath, opts...)
}

// NewFromConfig creates a Server from an already loaded config. configPath is
// used by Reload and may be empty, in which case Reload fails.
func NewFromConfig(cfg config.Config, configPath string, opts ...Option) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		configPath: configPath,
		addr:       cfg.Server.Addr,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.config.Store(&cfg)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	s.logger = logger

	driverMetrics, err := s.newMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	driverOpts := []driver.Option{
		driver.WithLogger(logger.Logger),
		driver.WithMetrics(driverMetrics),
	}
	if s.document != nil {
		driverOpts = append(driverOpts, driver.WithDocument(s.document))
	}
	s.driver, err = driver.New(cfg.Driver, driverOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating driver: %w", err)
	}

	s.link = hostlink.New(s.driver.Bus(),
		[]bridge.Origin{bridge.OriginBackend, bridge.OriginAutomation},
		hostlink.WithLogger(logger.With("component", "hostlink")),
		hostlink.WithDispatcher(s.driver),
	)
	s.link.Forward(forwardedEvents...)

	if cfg.History.StateDir != "" {
		s.snapshotter, err = history.NewSnapshotter(cfg.History.StateDir, cfg.History.MaxCount, s.driver.History(), logger.Logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Server.TLSCert != "" {
		s.certs, err = newCertLoader(cfg.Server.TLSCert, cfg.Server.TLSKey, logger.Logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Server.Cron != "" {
		s.cron, err = cron.NewManager(cfg.Server.Cron, s.jobs(), logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating cron manager: %w", err)
		}
	}

	return s, nil
}

// newMetrics picks push mode when a remote write URL is configured and
// scrape mode otherwise.
func (s *Server) newMetrics(cfg config.MetricsConfig) (*metrics.DriverMetrics, error) {
	var reg metrics.Registry
	if cfg.RemoteWriteURL != "" {
		s.push = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.RemoteWriteURL,
			Prefix:   cfg.MetricsPrefix,
			Job:      cfg.JobName,
			Instance: cfg.Instance,
			Timeout:  cfg.PushTimeout,
		})
		reg = s.push
	} else {
		scrape, err := metrics.NewScrapeRegistry(cfg.GoRuntime)
		if err != nil {
			return nil, fmt.Errorf("creating metrics registry: %w", err)
		}
		s.scrape = scrape
		reg = scrape
	}

	m, err := metrics.NewDriverMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("creating driver metrics: %w", err)
	}
	return m, nil
}

// jobs returns the maintenance jobs this server can schedule.
func (s *Server) jobs() map[string]cron.Job {
	jobs := make(map[string]cron.Job)
	if s.snapshotter != nil {
		jobs[JobSnapshot] = s.snapshotter
	}
	if s.push != nil {
		jobs[JobFlush] = cron.JobFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), s.Config().Metrics.PushTimeout)
			defer cancel()
			return s.push.Flush(ctx)
		})
	}
	return jobs
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger.Logger
}

// Driver returns the hosted driver.
func (s *Server) Driver() *driver.Driver {
	return s.driver
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.config.Load()
}

// Reload reads the config from disk, reconfigures the driver for the new
// driver section and applies the new log level. Listener, metrics and
// schedule settings take effect on restart.
func (s *Server) Reload() error {
	if s.configPath == "" {
		return errors.New("no config path to reload from")
	}
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}
	if err := s.driver.SetConfig(cfg.Driver); err != nil {
		return fmt.Errorf("reconfiguring driver: %w", err)
	}
	s.config.Store(&cfg)

	s.logger.Info("configuration loaded", "config_path", s.configPath)
	return nil
}

// HostConnected reports whether the host process is connected.
func (s *Server) HostConnected() bool {
	return s.link.Connected()
}

// Resumed reports whether the current run resumed after a page reload.
func (s *Server) Resumed() bool {
	return s.driver.Resumed()
}

// RetainedTests returns the number of tests in the history queue.
func (s *Server) RetainedTests() int {
	return s.driver.History().Len()
}

// NextRun returns the next scheduled maintenance run, or nil if no cron is
// configured.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.NextRun()
	return &next
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.HandleHealth)
	if s.scrape != nil {
		r.Handle("/metrics", s.scrape.Handler())
	}
	r.Handle("/host", s.link)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", handlers.HandleVersion)
		r.Method(http.MethodGet, "/status", handlers.NewAPIStatusHandler(s))
		r.Method(http.MethodGet, "/config", handlers.NewConfigHandler(s))
		r.Method(http.MethodPost, "/reload", handlers.NewReloadHandler(s.Logger(), s))
		r.Method(http.MethodGet, "/state", handlers.NewStateHandler(s.driver))
		r.Method(http.MethodGet, "/history", handlers.NewHistoryHandler(s.driver.History()))
		r.Method(http.MethodGet, "/history/{testID}", handlers.NewTestHandler(s.driver.History()))
		r.Method(http.MethodPost, "/action", handlers.NewActionHandler(s.Logger(), s.driver))
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done, closing the host
// link and taking a final history snapshot if snapshots are enabled.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: defaultReadTimeout,
		// No WriteTimeout: /host stays open for the whole run.
	}
	if s.certs != nil {
		s.httpServer.TLSConfig = s.certs.tlsConfig()
	}

	if s.cron != nil {
		s.logger.Info("starting cron triggers", "next_run", s.cron.NextRun())
		s.cron.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.addr,
			"config_path", s.configPath,
			"tls", s.certs != nil,
		)
		var err error
		if s.certs != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config().Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing host link: %w", err))
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if s.snapshotter != nil {
		if _, err := s.snapshotter.Save(); err != nil {
			errs = append(errs, fmt.Errorf("saving history snapshot: %w", err))
		}
	}
	if s.push != nil {
		if err := s.push.Flush(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("flushing metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}
