package gateway

// Public events emitted on the bus.
const (
	EventRecorderFrame         = "recorder:frame"
	EventStop                  = "stop"
	EventConfig                = "config"
	EventRunStart              = "run:start"
	EventRunEnd                = "run:end"
	EventMocha                 = "mocha"
	EventTestBeforeRun         = "test:before:run"
	EventTestBeforeRunAsync    = "test:before:run:async"
	EventRunnableAfterRunAsync = "runnable:after:run:async"
	EventTestAfterRun          = "test:after:run"
	EventBeforeAllScreenshots  = "before:all:screenshots"
	EventBeforeScreenshot      = "before:screenshot"
	EventAfterScreenshot       = "after:screenshot"
	EventAfterAllScreenshots   = "after:all:screenshots"
	EventLogAdded              = "log:added"
	EventLogChanged            = "log:changed"
	EventFail                  = "fail"
	EventStabilityChanged      = "stability:changed"
	EventPaused                = "paused"
	EventCanceled              = "canceled"
	EventVisitFailed           = "visit:failed"
	EventViewportChanged       = "viewport:changed"
	EventCommandStart          = "command:start"
	EventCommandEnd            = "command:end"
	EventCommandRetry          = "command:retry"
	EventCommandEnqueued       = "command:enqueued"
	EventCommandQueueBeforeEnd = "command:queue:before:end"
	EventCommandQueueEnd       = "command:queue:end"
	EventURLChanged            = "url:changed"
	EventNextSubjectPrepared   = "next:subject:prepared"
	EventCollectRunState       = "collect:run:state"
	EventScrolled              = "scrolled"
	EventUncaughtException     = "uncaught:exception"
	EventWindowAlert           = "window:alert"
	EventWindowConfirm         = "window:confirm"
	EventWindowConfirmed       = "window:confirmed"
	EventPageLoading           = "page:loading"
	EventWindowBeforeLoad      = "window:before:load"
	EventNavigationChanged     = "navigation:changed"
	EventFormSubmitted         = "form:submitted"
	EventWindowLoad            = "window:load"
	EventWindowBeforeUnload    = "window:before:unload"
	EventWindowUnload          = "window:unload"
	EventCSSModified           = "css:modified"
	EventScriptError           = "script:error"
)

// Kinds carried as the first argument of EventMocha.
const (
	MochaStart        = "start"
	MochaEnd          = "end"
	MochaSuite        = "suite"
	MochaSuiteEnd     = "suite end"
	MochaHook         = "hook"
	MochaHookEnd      = "hook end"
	MochaTest         = "test"
	MochaTestEnd      = "test end"
	MochaPass         = "pass"
	MochaPending      = "pending"
	MochaFail         = "fail"
	MochaTestAfterRun = "test:after:run"
)

// PublicEvents returns every event name the gateway emits.
func PublicEvents() []string {
	return []string{
		EventRecorderFrame, EventStop, EventConfig, EventRunStart, EventRunEnd,
		EventMocha, EventTestBeforeRun, EventTestBeforeRunAsync,
		EventRunnableAfterRunAsync, EventTestAfterRun,
		EventBeforeAllScreenshots, EventBeforeScreenshot, EventAfterScreenshot,
		EventAfterAllScreenshots, EventLogAdded, EventLogChanged, EventFail,
		EventStabilityChanged, EventPaused, EventCanceled, EventVisitFailed,
		EventViewportChanged, EventCommandStart, EventCommandEnd,
		EventCommandRetry, EventCommandEnqueued, EventCommandQueueBeforeEnd,
		EventCommandQueueEnd, EventURLChanged, EventNextSubjectPrepared,
		EventCollectRunState, EventScrolled, EventUncaughtException,
		EventWindowAlert, EventWindowConfirm, EventWindowConfirmed,
		EventPageLoading, EventWindowBeforeLoad, EventNavigationChanged,
		EventFormSubmitted, EventWindowLoad, EventWindowBeforeUnload,
		EventWindowUnload, EventCSSModified, EventScriptError,
	}
}
