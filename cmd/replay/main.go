package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nomis52/specdriver/buildinfo"
	"github.com/nomis52/specdriver/config"
	"github.com/nomis52/specdriver/driver"
	"github.com/nomis52/specdriver/logging"
	"github.com/nomis52/specdriver/metrics"
)

type Args struct {
	ConfigPath  string
	ScriptPath  string
	ShowVersion bool
	Validate    bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		showVersion()
		return nil
	}

	if args.ScriptPath == "" {
		return fmt.Errorf("script flag (-s or --script) is required")
	}

	cfg, err := loadConfig(args.ConfigPath)
	if err != nil {
		return err
	}

	script, err := LoadScript(args.ScriptPath)
	if err != nil {
		return err
	}

	if args.Validate {
		fmt.Printf("Script validation successful: %s (%d steps)\n", args.ScriptPath, len(script.Steps))
		return nil
	}

	if script.Driver != nil {
		cfg.Driver = *script.Driver
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	props := buildinfo.Get()
	logger.Info("replay started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"script", args.ScriptPath,
		"steps", len(script.Steps),
	)

	var registry *metrics.PushRegistry
	var driverMetrics *metrics.DriverMetrics
	if cfg.Metrics.RemoteWriteURL != "" {
		instance := cfg.Metrics.Instance
		if instance == "" {
			if instance, err = os.Hostname(); err != nil {
				return fmt.Errorf("failed to get hostname: %w", err)
			}
		}
		registry = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Metrics.RemoteWriteURL,
			Prefix:   cfg.Metrics.MetricsPrefix,
			Job:      cfg.Metrics.JobName,
			Instance: instance,
			Timeout:  cfg.Metrics.PushTimeout,
		})
		if driverMetrics, err = metrics.NewDriverMetrics(registry); err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	d, err := driver.New(cfg.Driver,
		driver.WithLogger(logger.Logger),
		driver.WithMetrics(driverMetrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}
	d.Attach(headlessRunner{logger: logger.Logger}, headlessCommands{logger: logger.Logger})

	ctx := context.Background()
	replayErr := Replay(ctx, d, script, os.Stdout)

	if registry != nil {
		if err := registry.Flush(ctx); err != nil {
			logger.Error("failed to push metrics", "error", err)
		}
	}

	if replayErr != nil {
		return fmt.Errorf("replay failed: %w", replayErr)
	}
	logger.Info("replay finished", "retained_tests", d.History().Len())
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		var cfg config.Config
		cfg.SetDefaults()
		return cfg, nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func showVersion() {
	props := buildinfo.Get()
	fmt.Printf("replay %s\n", props.Version)
	fmt.Printf("Built: %s\n", props.BuildTime)
	fmt.Printf("Commit: %s\n", props.GitCommit)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	scriptPath := flag.String("script", "", "Path to the YAML signal script")
	scriptPathShort := flag.String("s", "", "Path to the YAML signal script (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate the script and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nReplays recorded signals through a headless driver and prints the events it emits\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --script run.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml -s run.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -s run.yaml --validate\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}
	script := *scriptPath
	if script == "" && *scriptPathShort != "" {
		script = *scriptPathShort
	}

	return Args{
		ConfigPath:  path,
		ScriptPath:  script,
		ShowVersion: *showVersion || *versionShort,
		Validate:    *validate,
	}
}
