package gateway

import (
	"reflect"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"

	"github.com/nomis52/specdriver/history"
)

// FailureTypeExistence marks assertion failures about an element's existence.
const FailureTypeExistence = "existence"

// Failure is an assertion failure attached to a failed test.
type Failure struct {
	Type     string `json:"type,omitempty"`
	Message  string `json:"message"`
	Actual   any    `json:"actual,omitempty"`
	Expected any    `json:"expected,omitempty"`
	ShowDiff bool   `json:"showDiff"`
	Diff     string `json:"diff,omitempty"`
}

// FailedTest is the runner:fail payload.
type FailedTest struct {
	history.Runnable
	Err *Failure `json:"err"`
}

// DOMNode is implemented by operands that stand for page elements.
type DOMNode interface {
	NodeName() string
}

var inspector = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// PrepareFailure readies a failure for reporting. Diffs are disabled for
// existence failures and element operands, a diff is rendered while still
// enabled, and non-primitive operands are replaced with an inspected string.
// payload is a *FailedTest, a *Failure or a decoded JSON object with an
// "err" field; anything else is left alone.
func PrepareFailure(payload any) {
	switch p := payload.(type) {
	case *FailedTest:
		if p != nil && p.Err != nil {
			prepare(p.Err)
		}
	case *Failure:
		if p != nil {
			prepare(p)
		}
	case map[string]any:
		if errObj, ok := p["err"].(map[string]any); ok {
			prepareObject(errObj)
		}
	}
}

func prepare(f *Failure) {
	if f.Type == FailureTypeExistence || isDOM(f.Actual) || isDOM(f.Expected) {
		f.ShowDiff = false
	}
	if f.ShowDiff && f.Diff == "" {
		f.Diff = diff(f.Expected, f.Actual)
	}
	f.Actual = inspect(f.Actual)
	f.Expected = inspect(f.Expected)
}

func prepareObject(obj map[string]any) {
	actual, expected := obj["actual"], obj["expected"]
	failType, _ := obj["type"].(string)
	if failType == FailureTypeExistence || isDOM(actual) || isDOM(expected) {
		obj["showDiff"] = false
	}
	if show, _ := obj["showDiff"].(bool); show {
		if _, ok := obj["diff"]; !ok {
			obj["diff"] = diff(expected, actual)
		}
	}
	if actual != nil {
		obj["actual"] = inspect(actual)
	}
	if expected != nil {
		obj["expected"] = inspect(expected)
	}
}

// isDOM reports whether v is an element, or a decoded element carrying a
// nodeType.
func isDOM(v any) bool {
	switch n := v.(type) {
	case DOMNode:
		return true
	case map[string]any:
		_, ok := n["nodeType"]
		return ok
	}
	return false
}

func diff(expected, actual any) string {
	if expected == nil || actual == nil {
		return ""
	}
	return cmp.Diff(expected, actual, cmp.Exporter(func(reflect.Type) bool { return true }))
}

// inspect renders non-primitive operands; primitives pass through unchanged.
func inspect(v any) any {
	if v == nil || isPrimitive(v) {
		return v
	}
	return strings.TrimSpace(inspector.Sdump(v))
}

func isPrimitive(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
