package gateway

import (
	"fmt"
	"time"

	"github.com/nomis52/specdriver/history"
)

// RunnableFrom extracts a runnable from a signal payload. Payloads arrive
// either as typed values from in-process collaborators or as decoded JSON
// objects from the host.
func RunnableFrom(v any) (history.Runnable, bool) {
	switch p := v.(type) {
	case history.Runnable:
		return p, p.ID != ""
	case *history.Runnable:
		if p == nil {
			return history.Runnable{}, false
		}
		return *p, p.ID != ""
	case *FailedTest:
		if p == nil {
			return history.Runnable{}, false
		}
		return p.Runnable, p.ID != ""
	case map[string]any:
		r := history.Runnable{
			ID:    stringField(p, "id"),
			Title: stringField(p, "title"),
			Type:  stringField(p, "type"),
		}
		return r, r.ID != ""
	}
	return history.Runnable{}, false
}

// CommandLogFrom extracts a command log entry from a signal payload.
func CommandLogFrom(v any) (history.CommandLog, bool) {
	switch p := v.(type) {
	case history.CommandLog:
		return p, p.ID != ""
	case *history.CommandLog:
		if p == nil {
			return history.CommandLog{}, false
		}
		return *p, p.ID != ""
	case map[string]any:
		entry := history.CommandLog{
			ID:         stringField(p, "id"),
			TestID:     stringField(p, "testId"),
			Instrument: stringField(p, "instrument"),
			Name:       stringField(p, "name"),
			Message:    stringField(p, "message"),
			State:      stringField(p, "state"),
			Time:       time.Now(),
		}
		if attrs, ok := p["attributes"].(map[string]any); ok {
			entry.Attributes = attrs
		}
		return entry, entry.ID != ""
	}
	return history.CommandLog{}, false
}

// stringField reads key from m, formatting numeric ids.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
