// Package handlers provides HTTP handlers for the specdriver daemon.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"
	"time"

	"github.com/nomis52/specdriver/config"
	"github.com/nomis52/specdriver/history"
	"github.com/nomis52/specdriver/state"
)

// ConfigProvider provides access to the current daemon configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// StateProvider provides access to the driver's stores.
type StateProvider interface {
	Config() *state.Store
	State() *state.Store
	Env() *state.Store
}

// HistoryProvider provides access to the retained test history.
type HistoryProvider interface {
	Tests() []history.TestRecord
	Test(id string) (history.TestRecord, bool)
}

// ActionDispatcher dispatches signals by wire name.
type ActionDispatcher interface {
	ActionName(ctx context.Context, name string, args ...any) ([]any, error)
}

// StatusProvider aggregates what the status endpoint reports.
type StatusProvider interface {
	HostConnected() bool
	Resumed() bool
	RetainedTests() int
	NextRun() *time.Time
}
