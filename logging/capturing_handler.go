package logging

import (
	"context"
	"log/slog"
)

// CapturingHandler wraps an slog.Handler and tees every record emitted while a
// test is running into a Sink, attributed to that test.
type CapturingHandler struct {
	underlying slog.Handler
	sink       Sink
	resolve    TestResolver
	attrs      []slog.Attr
	groups     []string
}

// NewCapturingHandler creates a CapturingHandler. resolve is consulted on every
// record; records outside a test are only passed through.
func NewCapturingHandler(underlying slog.Handler, sink Sink, resolve TestResolver) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		sink:       sink,
		resolve:    resolve,
	}
}

// Enabled always returns true so debug records reach the sink even when the
// underlying handler filters them. Handle applies the underlying level.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle captures the record when a test is active and passes it to the
// underlying handler if that handler accepts its level.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	if testID := h.resolve(); testID != "" {
		entry := LogEntry{
			Time:       r.Time,
			Level:      r.Level.String(),
			Message:    r.Message,
			Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
		}
		for _, attr := range h.attrs {
			entry.Attributes[attr.Key] = resolveValue(attr.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			entry.Attributes[h.qualify(a.Key)] = resolveValue(a.Value)
			return true
		})
		h.sink.Capture(testID, entry)
	}

	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

// WithAttrs returns a new CapturingHandler so capturing survives .With() chains.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		a.Key = h.qualify(a.Key)
		newAttrs = append(newAttrs, a)
	}

	return &CapturingHandler{
		underlying: h.underlying.WithAttrs(attrs),
		sink:       h.sink,
		resolve:    h.resolve,
		attrs:      newAttrs,
		groups:     h.groups,
	}
}

// WithGroup returns a new CapturingHandler; later attribute keys are prefixed
// with the group path in captured entries.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	return &CapturingHandler{
		underlying: h.underlying.WithGroup(name),
		sink:       h.sink,
		resolve:    h.resolve,
		attrs:      h.attrs,
		groups:     newGroups,
	}
}

func (h *CapturingHandler) qualify(key string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return key
}

// resolveValue converts a slog.Value to a JSON-serializable value.
func resolveValue(v slog.Value) any {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindAny:
		a := v.Any()
		if err, ok := a.(error); ok {
			return err.Error()
		}
		return a
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, attr := range attrs {
			group[attr.Key] = resolveValue(attr.Value)
		}
		return group
	default:
		return v.Any()
	}
}
