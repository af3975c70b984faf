package bridge

import (
	"errors"
	"fmt"
)

// Error is a failure reported by the host for a request.
type Error struct {
	Origin  Origin
	Name    string
	Message string
	Stack   string
	// StackFinalized marks Stack as complete. It is always true for errors
	// rebuilt from a reply; callers must not append frames to it.
	StackFinalized bool
}

func newError(origin Origin, p *ErrorPayload) *Error {
	return &Error{
		Origin:         origin,
		Name:           p.Name,
		Message:        p.Message,
		Stack:          p.Stack,
		StackFinalized: true,
	}
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s", e.Origin, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Origin, e.Name, e.Message)
}

// Backend reports whether the failure came from the backend.
func (e *Error) Backend() bool {
	return e.Origin == OriginBackend
}

// Automation reports whether the failure came from the automation service.
func (e *Error) Automation() bool {
	return e.Origin == OriginAutomation
}

// IsBackend reports whether err wraps a backend failure.
func IsBackend(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Backend()
}

// IsAutomation reports whether err wraps an automation failure.
func IsAutomation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Automation()
}
