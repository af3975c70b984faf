package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/specdriver/config"
	"github.com/nomis52/specdriver/driver"
	"github.com/nomis52/specdriver/events"
	"github.com/nomis52/specdriver/gateway"
)

// Step is one signal fed to the driver.
type Step struct {
	Signal string `yaml:"signal"`
	Args   []any  `yaml:"args"`
}

// Script is a recorded sequence of signals.
type Script struct {
	// Driver replaces the config file's driver section when set.
	Driver *config.Driver `yaml:"driver"`
	// ResumeAt marks the run as resumed from this test id before the first step.
	ResumeAt string `yaml:"resume_at"`
	Steps    []Step `yaml:"steps"`
}

// LoadScript reads and checks a script file.
func LoadScript(path string) (Script, error) {
	var s Script
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode script: %w", err)
	}
	if len(s.Steps) == 0 {
		return s, fmt.Errorf("script %s has no steps", path)
	}
	for i, step := range s.Steps {
		if _, ok := gateway.ParseSignal(step.Signal); !ok {
			return s, fmt.Errorf("step %d: unknown signal %q", i+1, step.Signal)
		}
	}
	return s, nil
}

// Replay feeds the script's steps to d and writes every public event to out,
// one line per event.
func Replay(ctx context.Context, d *driver.Driver, script Script, out io.Writer) error {
	var subs []events.Subscription
	for _, name := range gateway.PublicEvents() {
		name := name
		subs = append(subs, d.On(name, func(args ...any) any {
			fmt.Fprintf(out, "%s %s\n", name, formatArgs(args))
			return nil
		}))
	}
	defer func() {
		for _, s := range subs {
			d.Off(s)
		}
	}()

	if script.ResumeAt != "" {
		d.ResumeAtTest(script.ResumeAt)
	}

	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := d.ActionName(ctx, step.Signal, step.Args...); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Signal, err)
		}
	}
	return nil
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return "[]"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

// headlessRunner stands in for the test framework adapter.
type headlessRunner struct {
	logger *slog.Logger
}

func (r headlessRunner) OnRunnableRun(args ...any) any {
	r.logger.Debug("runnable run", "args", len(args))
	return nil
}

func (r headlessRunner) Run(ctx context.Context) error { return nil }
func (r headlessRunner) Stop()                         {}

// headlessCommands stands in for the command queue.
type headlessCommands struct {
	logger *slog.Logger
}

func (c headlessCommands) Reset() {
	c.logger.Debug("command queue reset")
}

func (c headlessCommands) SetRunnable(args ...any) any {
	c.logger.Debug("runnable set", "args", len(args))
	return nil
}

func (c headlessCommands) OnBeforeAppWindowLoad(win any) {}
func (c headlessCommands) Stop()                         {}
