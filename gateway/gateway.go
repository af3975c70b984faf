// Package gateway normalizes internal lifecycle signals into the public event
// vocabulary.
//
// Action is the single entry point. Each signal maps to zero or more public
// events on the bus, some gated on the isTextTerminal configuration flag, and
// a few invoke side effects on the attached collaborators first.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nomis52/specdriver/events"
	"github.com/nomis52/specdriver/history"
	"github.com/nomis52/specdriver/logging"
	"github.com/nomis52/specdriver/metrics"
	"github.com/nomis52/specdriver/state"
)

// Configuration and runtime state keys read or written by the gateway.
const (
	KeyIsTextTerminal       = "isTextTerminal"
	KeyIsInteractive        = "isInteractive"
	KeyNumTestsKeptInMemory = "numTestsKeptInMemory"
	KeyCurrentTestID        = "currentTestId"
)

var (
	// ErrNoRunner is returned for signals that need the test framework
	// runner before one was attached.
	ErrNoRunner = errors.New("the test runner has not been attached")
	// ErrNoCommands is returned for signals that need the command queue
	// before one was attached.
	ErrNoCommands = errors.New("the command queue has not been attached")
)

// Runner is the test framework adapter.
type Runner interface {
	OnRunnableRun(args ...any) any
}

// Commands is the command queue collaborator.
type Commands interface {
	Reset()
	SetRunnable(args ...any) any
	OnBeforeAppWindowLoad(win any)
}

// History retains per-test diagnostics.
type History interface {
	Track(r history.Runnable)
	AddLog(entry history.CommandLog, interactive bool)
	CleanupQueue(retain int) int
}

// Gateway dispatches signals. It is safe for concurrent use.
type Gateway struct {
	bus     *events.Bus
	logger  *slog.Logger
	metrics *metrics.DriverMetrics
	history History

	mu       sync.RWMutex
	config   *state.Store
	runtime  *state.Store
	runner   Runner
	commands Commands

	resumed atomic.Bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics counts received signals.
func WithMetrics(m *metrics.DriverMetrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithHistory sets the store command logs are retained in.
func WithHistory(h History) Option {
	return func(g *Gateway) {
		g.history = h
	}
}

// New creates a Gateway emitting on bus and reading configuration from config.
// runtime receives the current test id.
func New(bus *events.Bus, config, runtime *state.Store, opts ...Option) *Gateway {
	g := &Gateway{
		bus:     bus,
		logger:  logging.Discard(),
		config:  config,
		runtime: runtime,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Attach sets the collaborators. Either may be nil.
func (g *Gateway) Attach(runner Runner, commands Commands) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runner = runner
	g.commands = commands
}

// Reconfigure swaps the stores for a new run and clears the resumption latch.
func (g *Gateway) Reconfigure(config, runtime *state.Store) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.config = config
	g.runtime = runtime
	g.resumed.Store(false)
}

// MarkResumed records that the run resumes part way through the suite, so
// runner:start does not announce a fresh start. It stays set for the run.
func (g *Gateway) MarkResumed() {
	g.resumed.Store(true)
}

// Resumed reports whether MarkResumed was called during this run.
func (g *Gateway) Resumed() bool {
	return g.resumed.Load()
}

func (g *Gateway) stores() (*state.Store, *state.Store) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config, g.runtime
}

func (g *Gateway) collaborators() (Runner, Commands) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.runner, g.commands
}

func (g *Gateway) textTerminal() bool {
	config, _ := g.stores()
	return config.Bool(KeyIsTextTerminal)
}

// ActionName dispatches a signal by wire name. Unknown names are ignored.
func (g *Gateway) ActionName(ctx context.Context, name string, args ...any) ([]any, error) {
	sig, ok := ParseSignal(name)
	if !ok {
		g.logger.Debug("ignoring unknown signal", "signal", name)
		return nil, nil
	}
	return g.Action(ctx, sig, args...)
}

// Action dispatches one signal. The returned values are the listener results
// for signals dispatched with EmitMap or EmitThen, or the collaborator's
// result for signals handed to one; they are nil otherwise.
func (g *Gateway) Action(ctx context.Context, sig Signal, args ...any) ([]any, error) {
	g.metrics.SignalReceived(sig.String())
	g.logger.Debug("action", "signal", sig.String(), "args", len(args))

	switch sig {
	case RecorderFrame:
		return g.emit(EventRecorderFrame, first(args)...)
	case CypressStop:
		return g.emit(EventStop)
	case CypressConfig:
		return g.emit(EventConfig, first(args)...)

	case RunnerStart:
		if _, err := g.emit(EventRunStart); err != nil {
			return nil, err
		}
		if g.Resumed() {
			return nil, nil
		}
		return g.mochaIfTerminal(MochaStart, first(args)...)
	case RunnerEnd:
		if _, err := g.emit(EventRunEnd); err != nil {
			return nil, err
		}
		return g.mochaIfTerminal(MochaEnd, first(args)...)
	case RunnerSetRunnable:
		_, commands := g.collaborators()
		if commands == nil {
			return nil, ErrNoCommands
		}
		return []any{commands.SetRunnable(args...)}, nil
	case RunnerSuiteStart:
		return g.mochaIfTerminal(MochaSuite, args...)
	case RunnerSuiteEnd:
		return g.mochaIfTerminal(MochaSuiteEnd, args...)
	case RunnerHookStart:
		return g.mochaIfTerminal(MochaHook, args...)
	case RunnerHookEnd:
		return g.mochaIfTerminal(MochaHookEnd, args...)
	case RunnerTestStart:
		return g.mochaIfTerminal(MochaTest, args...)
	case RunnerTestEnd:
		return g.mochaIfTerminal(MochaTestEnd, args...)
	case RunnerPass:
		return g.mochaIfTerminal(MochaPass, args...)
	case RunnerPending:
		return g.mochaIfTerminal(MochaPending, args...)
	case RunnerFail:
		if len(args) > 0 {
			PrepareFailure(args[0])
		}
		return g.mochaIfTerminal(MochaFail, args...)
	case MochaRunnableRun:
		runner, _ := g.collaborators()
		if runner == nil {
			return nil, ErrNoRunner
		}
		return []any{runner.OnRunnableRun(args...)}, nil
	case RunnerTestBeforeRun:
		_, commands := g.collaborators()
		if commands == nil {
			return nil, ErrNoCommands
		}
		commands.Reset()
		g.beginTest(args)
		return g.emit(EventTestBeforeRun, args...)
	case RunnerTestBeforeRunAsync:
		return g.bus.EmitThen(ctx, EventTestBeforeRunAsync, args...)
	case RunnerRunnableAfterRunAsync:
		return g.bus.EmitThen(ctx, EventRunnableAfterRunAsync, args...)
	case RunnerTestAfterRun:
		g.cleanupHistory()
		if _, err := g.emit(EventTestAfterRun, args...); err != nil {
			return nil, err
		}
		return g.mochaIfTerminal(MochaTestAfterRun, first(args)...)

	case CyBeforeAllScreenshots:
		return g.emit(EventBeforeAllScreenshots, args...)
	case CyBeforeScreenshot:
		return g.emit(EventBeforeScreenshot, args...)
	case CyAfterScreenshot:
		return g.emit(EventAfterScreenshot, args...)
	case CyAfterAllScreenshots:
		return g.emit(EventAfterAllScreenshots, args...)

	case CommandLogAdded:
		g.addLog(args)
		return g.emit(EventLogAdded, args...)
	case CommandLogChanged:
		g.addLog(args)
		return g.emit(EventLogChanged, args...)

	case CyFail:
		return g.bus.EmitMap(EventFail, args...)
	case CyStabilityChanged:
		return g.emit(EventStabilityChanged, args...)
	case CyPaused:
		return g.emit(EventPaused, args...)
	case CyCanceled:
		return g.emit(EventCanceled)
	case CyVisitFailed:
		return g.emit(EventVisitFailed, first(args)...)
	case CyViewportChanged:
		return g.emit(EventViewportChanged, args...)
	case CyCommandStart:
		return g.emit(EventCommandStart, args...)
	case CyCommandEnd:
		return g.emit(EventCommandEnd, args...)
	case CyCommandRetry:
		return g.emit(EventCommandRetry, args...)
	case CyCommandEnqueued:
		return g.emit(EventCommandEnqueued, first(args)...)
	case CyCommandQueueBeforeEnd:
		return g.emit(EventCommandQueueBeforeEnd)
	case CyCommandQueueEnd:
		return g.emit(EventCommandQueueEnd)
	case CyURLChanged:
		return g.emit(EventURLChanged, first(args)...)
	case CyNextSubjectPrepared:
		return g.emit(EventNextSubjectPrepared, args...)
	case CyCollectRunState:
		return g.bus.EmitThen(ctx, EventCollectRunState)
	case CyScrolled:
		return g.emit(EventScrolled, args...)

	case AppUncaughtException:
		return g.bus.EmitMap(EventUncaughtException, args...)
	case AppWindowAlert:
		return g.emit(EventWindowAlert, first(args)...)
	case AppWindowConfirm:
		return g.bus.EmitMap(EventWindowConfirm, first(args)...)
	case AppWindowConfirmed:
		return g.emit(EventWindowConfirmed, args...)
	case AppPageLoading:
		return g.emit(EventPageLoading, first(args)...)
	case AppWindowBeforeLoad:
		_, commands := g.collaborators()
		if commands == nil {
			return nil, ErrNoCommands
		}
		var win any
		if len(args) > 0 {
			win = args[0]
		}
		commands.OnBeforeAppWindowLoad(win)
		return g.emit(EventWindowBeforeLoad, first(args)...)
	case AppNavigationChanged:
		return g.emit(EventNavigationChanged, args...)
	case AppFormSubmitted:
		return g.emit(EventFormSubmitted, first(args)...)
	case AppWindowLoad:
		return g.emit(EventWindowLoad, first(args)...)
	case AppWindowBeforeUnload:
		return g.emit(EventWindowBeforeUnload, first(args)...)
	case AppWindowUnload:
		return g.emit(EventWindowUnload, first(args)...)
	case AppCSSModified:
		return g.emit(EventCSSModified, first(args)...)

	case SpecScriptError:
		return g.emit(EventScriptError, args...)

	case SignalUnknown, numSignals:
		return nil, nil
	}
	return nil, nil
}

func (g *Gateway) emit(name string, args ...any) ([]any, error) {
	return nil, g.bus.Emit(name, args...)
}

// mochaIfTerminal forwards a test framework event, only in text terminal runs.
func (g *Gateway) mochaIfTerminal(kind string, args ...any) ([]any, error) {
	if !g.textTerminal() {
		return nil, nil
	}
	return g.emit(EventMocha, append([]any{kind}, args...)...)
}

func (g *Gateway) beginTest(args []any) {
	if len(args) == 0 {
		return
	}
	r, ok := RunnableFrom(args[0])
	if !ok {
		return
	}
	_, runtime := g.stores()
	runtime.Set(KeyCurrentTestID, r.ID)
	if g.history != nil {
		g.history.Track(r)
	}
}

func (g *Gateway) addLog(args []any) {
	if g.history == nil || len(args) == 0 {
		return
	}
	entry, ok := CommandLogFrom(args[0])
	if !ok {
		g.logger.Debug("log payload not recognised", "type", typeName(args[0]))
		return
	}
	config, runtime := g.stores()
	if entry.TestID == "" {
		entry.TestID = runtime.String(KeyCurrentTestID)
	}
	g.history.AddLog(entry, config.Bool(KeyIsInteractive))
}

func (g *Gateway) cleanupHistory() {
	if g.history == nil {
		return
	}
	config, _ := g.stores()
	g.history.CleanupQueue(config.Int(KeyNumTestsKeptInMemory))
}

// first returns the leading argument alone, for events that forward only it.
func first(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	return args[:1]
}
