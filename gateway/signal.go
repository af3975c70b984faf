package gateway

// Signal is an internal lifecycle signal accepted by Action.
type Signal int

const (
	SignalUnknown Signal = iota

	RecorderFrame
	CypressStop
	CypressConfig

	RunnerStart
	RunnerEnd
	RunnerSetRunnable
	RunnerSuiteStart
	RunnerSuiteEnd
	RunnerHookStart
	RunnerHookEnd
	RunnerTestStart
	RunnerTestEnd
	RunnerPass
	RunnerPending
	RunnerFail
	MochaRunnableRun
	RunnerTestBeforeRun
	RunnerTestBeforeRunAsync
	RunnerRunnableAfterRunAsync
	RunnerTestAfterRun

	CyBeforeAllScreenshots
	CyBeforeScreenshot
	CyAfterScreenshot
	CyAfterAllScreenshots

	CommandLogAdded
	CommandLogChanged

	CyFail
	CyStabilityChanged
	CyPaused
	CyCanceled
	CyVisitFailed
	CyViewportChanged
	CyCommandStart
	CyCommandEnd
	CyCommandRetry
	CyCommandEnqueued
	CyCommandQueueBeforeEnd
	CyCommandQueueEnd
	CyURLChanged
	CyNextSubjectPrepared
	CyCollectRunState
	CyScrolled

	AppUncaughtException
	AppWindowAlert
	AppWindowConfirm
	AppWindowConfirmed
	AppPageLoading
	AppWindowBeforeLoad
	AppNavigationChanged
	AppFormSubmitted
	AppWindowLoad
	AppWindowBeforeUnload
	AppWindowUnload
	AppCSSModified

	SpecScriptError

	numSignals
)

var signalNames = [numSignals]string{
	SignalUnknown: "unknown",

	RecorderFrame: "recorder:frame",
	CypressStop:   "cypress:stop",
	CypressConfig: "cypress:config",

	RunnerStart:                 "runner:start",
	RunnerEnd:                   "runner:end",
	RunnerSetRunnable:           "runner:set:runnable",
	RunnerSuiteStart:            "runner:suite:start",
	RunnerSuiteEnd:              "runner:suite:end",
	RunnerHookStart:             "runner:hook:start",
	RunnerHookEnd:               "runner:hook:end",
	RunnerTestStart:             "runner:test:start",
	RunnerTestEnd:               "runner:test:end",
	RunnerPass:                  "runner:pass",
	RunnerPending:               "runner:pending",
	RunnerFail:                  "runner:fail",
	MochaRunnableRun:            "mocha:runnable:run",
	RunnerTestBeforeRun:         "runner:test:before:run",
	RunnerTestBeforeRunAsync:    "runner:test:before:run:async",
	RunnerRunnableAfterRunAsync: "runner:runnable:after:run:async",
	RunnerTestAfterRun:          "runner:test:after:run",

	CyBeforeAllScreenshots: "cy:before:all:screenshots",
	CyBeforeScreenshot:     "cy:before:screenshot",
	CyAfterScreenshot:      "cy:after:screenshot",
	CyAfterAllScreenshots:  "cy:after:all:screenshots",

	CommandLogAdded:   "command:log:added",
	CommandLogChanged: "command:log:changed",

	CyFail:                  "cy:fail",
	CyStabilityChanged:      "cy:stability:changed",
	CyPaused:                "cy:paused",
	CyCanceled:              "cy:canceled",
	CyVisitFailed:           "cy:visit:failed",
	CyViewportChanged:       "cy:viewport:changed",
	CyCommandStart:          "cy:command:start",
	CyCommandEnd:            "cy:command:end",
	CyCommandRetry:          "cy:command:retry",
	CyCommandEnqueued:       "cy:command:enqueued",
	CyCommandQueueBeforeEnd: "cy:command:queue:before:end",
	CyCommandQueueEnd:       "cy:command:queue:end",
	CyURLChanged:            "cy:url:changed",
	CyNextSubjectPrepared:   "cy:next:subject:prepared",
	CyCollectRunState:       "cy:collect:run:state",
	CyScrolled:              "cy:scrolled",

	AppUncaughtException:  "app:uncaught:exception",
	AppWindowAlert:        "app:window:alert",
	AppWindowConfirm:      "app:window:confirm",
	AppWindowConfirmed:    "app:window:confirmed",
	AppPageLoading:        "app:page:loading",
	AppWindowBeforeLoad:   "app:window:before:load",
	AppNavigationChanged:  "app:navigation:changed",
	AppFormSubmitted:      "app:form:submitted",
	AppWindowLoad:         "app:window:load",
	AppWindowBeforeUnload: "app:window:before:unload",
	AppWindowUnload:       "app:window:unload",
	AppCSSModified:        "app:css:modified",

	SpecScriptError: "spec:script:error",
}

var signalsByName = func() map[string]Signal {
	m := make(map[string]Signal, numSignals)
	for s := SignalUnknown + 1; s < numSignals; s++ {
		m[signalNames[s]] = s
	}
	return m
}()

// String returns the signal's wire name.
func (s Signal) String() string {
	if s < 0 || s >= numSignals {
		return signalNames[SignalUnknown]
	}
	return signalNames[s]
}

// ParseSignal looks up a signal by wire name.
func ParseSignal(name string) (Signal, bool) {
	s, ok := signalsByName[name]
	return s, ok
}

// Signals returns every known signal in declaration order.
func Signals() []Signal {
	out := make([]Signal, 0, numSignals-1)
	for s := SignalUnknown + 1; s < numSignals; s++ {
		out = append(out, s)
	}
	return out
}
