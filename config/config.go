package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/specdriver/logging"
)

const (
	// Default listener
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 10 * time.Second

	// Default metrics settings
	defaultMetricsPrefix = "specdriver"
	defaultJobName       = "specdriver"
	defaultPushTimeout   = 10 * time.Second

	// Default history snapshot settings
	defaultSnapshotMaxCount = 20

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stderr"
)

const redacted = "REDACTED"

// omittedDriverKeys never reach the configuration store.
var omittedDriverKeys = []string{"env", "remote", "resolved", "scaffoldedFiles", "javascripts", "state"}

// Config represents the complete daemon configuration.
type Config struct {
	Driver  Driver         `yaml:"driver"`
	Logging logging.Config `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Server  ServerConfig   `yaml:"server"`
	History HistoryConfig  `yaml:"history"`
}

// Driver is the configuration object supplied by the host for a spec run.
// Keys follow the host's camelCase naming; unrecognised keys are kept in Extra
// and land in the configuration store unchanged.
type Driver struct {
	IsTextTerminal       bool   `yaml:"isTextTerminal"`
	NumTestsKeptInMemory int    `yaml:"numTestsKeptInMemory"`
	Namespace            string `yaml:"namespace"`

	// Static properties of the host.
	Arch     string         `yaml:"arch"`
	Version  string         `yaml:"version"`
	Platform string         `yaml:"platform"`
	Spec     map[string]any `yaml:"spec"`
	Browser  map[string]any `yaml:"browser"`

	Env    map[string]any `yaml:"env"`
	Remote *Remote        `yaml:"remote"`

	Extra map[string]any `yaml:",inline"`
}

// Remote describes the origin under test.
type Remote struct {
	Origin     string         `yaml:"origin"`
	DomainName string         `yaml:"domainName"`
	Strategy   string         `yaml:"strategy"`
	Props      map[string]any `yaml:"props"`
}

// DomainName returns remote.domainName, or "" if there is no remote.
func (d Driver) DomainName() string {
	if d.Remote == nil {
		return ""
	}
	return d.Remote.DomainName
}

// IsInteractive is always the negation of IsTextTerminal.
func (d Driver) IsInteractive() bool {
	return !d.IsTextTerminal
}

// Values returns the mapping the configuration store is built from. The env
// and remote objects, and host bookkeeping keys, are left out.
func (d Driver) Values() map[string]any {
	values := make(map[string]any, len(d.Extra)+10)
	for k, v := range d.Extra {
		values[k] = v
	}
	for _, k := range omittedDriverKeys {
		delete(values, k)
	}

	values["isTextTerminal"] = d.IsTextTerminal
	values["isInteractive"] = d.IsInteractive()
	values["numTestsKeptInMemory"] = d.NumTestsKeptInMemory
	if d.Namespace != "" {
		values["namespace"] = d.Namespace
	}
	if d.Arch != "" {
		values["arch"] = d.Arch
	}
	if d.Version != "" {
		values["version"] = d.Version
	}
	if d.Platform != "" {
		values["platform"] = d.Platform
	}
	if d.Spec != nil {
		values["spec"] = d.Spec
	}
	if d.Browser != nil {
		values["browser"] = d.Browser
	}
	return values
}

// MetricsConfig holds metrics settings. Without a remote write URL metrics are
// only exposed for scraping.
type MetricsConfig struct {
	RemoteWriteURL string        `yaml:"remote_write_url"`
	MetricsPrefix  string        `yaml:"metrics_prefix"`
	JobName        string        `yaml:"jobname"`
	Instance       string        `yaml:"instance"`
	PushTimeout    time.Duration `yaml:"push_timeout"`
	GoRuntime      bool          `yaml:"go_runtime"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// The listen address, defaults to :8080
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Schedules for maintenance jobs, e.g. "snapshot:*/5 * * * *"
	Cron string `yaml:"cron"`
	// TLS key pair; the listener serves plain HTTP when unset. A renewed
	// pair is picked up without a restart.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// HistoryConfig controls on-disk history snapshots. Snapshots are disabled
// when StateDir is empty.
type HistoryConfig struct {
	StateDir string `yaml:"state_dir"`
	MaxCount int    `yaml:"max_count"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	if c.Driver.NumTestsKeptInMemory < 0 {
		return fmt.Errorf("numTestsKeptInMemory must not be negative")
	}
	if c.Metrics.RemoteWriteURL != "" {
		u, err := url.Parse(c.Metrics.RemoteWriteURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid metrics remote_write_url %q", c.Metrics.RemoteWriteURL)
		}
	}
	if c.History.MaxCount < 0 {
		return fmt.Errorf("history max_count must not be negative")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server tls_cert and tls_key must be set together")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server shutdown_timeout must not be negative")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Metrics.MetricsPrefix == "" {
		c.Metrics.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Metrics.JobName == "" {
		c.Metrics.JobName = defaultJobName
	}
	if c.Metrics.PushTimeout == 0 {
		c.Metrics.PushTimeout = defaultPushTimeout
	}
	if c.History.MaxCount == 0 {
		c.History.MaxCount = defaultSnapshotMaxCount
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
	// numTestsKeptInMemory has no default: zero keeps no history.
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseDriver decodes a driver configuration object from YAML (or JSON).
func ParseDriver(data []byte) (Driver, error) {
	var d Driver
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Driver{}, fmt.Errorf("failed to decode driver config: %w", err)
	}
	return d, nil
}

// RedactEnv returns a copy of env with every value masked. A nil map stays nil.
func RedactEnv(env map[string]any) map[string]any {
	if env == nil {
		return nil
	}
	masked := make(map[string]any, len(env))
	for k := range env {
		masked[k] = redacted
	}
	return masked
}

// Redacted returns a copy of the config safe to display: env values are
// masked and credentials are stripped from the remote write URL.
func (c *Config) Redacted() Config {
	r := *c
	r.Driver.Env = RedactEnv(c.Driver.Env)
	if u, err := url.Parse(c.Metrics.RemoteWriteURL); err == nil && u.User != nil {
		u.User = url.User(redacted)
		r.Metrics.RemoteWriteURL = u.String()
	}
	return r
}
