// Package bridge defines the task-call boundary between the browser-context
// monitor and the host-process aggregator: the wire model shared by both
// halves, the procedure names, and the dispatchers that carry calls either
// in-process or over a websocket connection.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Names of the procedures the aggregator exposes on the bridge.
const (
	MethodProcessConsoleBatch = "processConsoleBatch"
	MethodGetErrorStats       = "getErrorStats"
	MethodResetErrorStats     = "resetErrorStats"
	MethodSetDebugMode        = "setDebugMode"

	// MethodReportConsoleIssue is the legacy single-issue call, kept for
	// compatibility with pre-batching clients.
	MethodReportConsoleIssue = "reportConsoleIssue"
)

// ErrUnknownMethod is returned when a call names a procedure no handler is
// registered for.
var ErrUnknownMethod = errors.New("unknown bridge method")

// IssueType classifies one observed console call or uncaught error.
type IssueType string

// The three issue classes. Console methods other than error and warn are
// informational.
const (
	TypeError IssueType = "error"
	TypeWarn  IssueType = "warn"
	TypeInfo  IssueType = "info"
)

// ErrorValue is an error-like console argument as delivered by the
// automation layer. Error objects don't survive structural serialization
// (their properties aren't enumerable, so they would flatten to "{}"), which
// is why only their name and message cross the boundary.
type ErrorValue struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Issue is one observed console call or uncaught error.
type Issue struct {
	Type IssueType `json:"type"`
	// Message holds the original console arguments: strings, structured
	// values and ErrorValues.
	Message []any `json:"message"`
	// RawMessage is the flattened form whitelist entries match against.
	// For synthesized uncaught-error issues it carries the original error
	// description instead of the formatted wrapper text, so users can
	// whitelist by the underlying message.
	RawMessage string `json:"rawMessage,omitempty"`
}

// Flattened returns the string whitelist entries match against, falling
// back to a join of the message values when no raw form was recorded.
func (i Issue) Flattened() string {
	if i.RawMessage != "" {
		return i.RawMessage
	}
	return FlattenValues(i.Message)
}

// Display returns the user-facing rendering of the issue, used in failure
// messages and log lines. Unlike Flattened it always formats the message
// values, so synthesized uncaught-error issues show their full wrapper text.
func (i Issue) Display() string {
	if len(i.Message) == 0 {
		return i.RawMessage
	}
	return FlattenValues(i.Message)
}

// FlattenValues renders console arguments to a single space-joined string.
func FlattenValues(args []any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, flattenValue(arg))
	}
	return strings.Join(parts, " ")
}

func flattenValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case ErrorValue:
		if val.Name == "" {
			return val.Message
		}
		return val.Name + ": " + val.Message
	case map[string]any:
		// Error-like values that crossed a JSON hop arrive as plain maps.
		if name, msg, ok := errorLike(val); ok {
			if name == "" {
				return msg
			}
			return name + ": " + msg
		}
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func errorLike(m map[string]any) (name, msg string, ok bool) {
	rawMsg, hasMsg := m["message"]
	if !hasMsg {
		return "", "", false
	}
	msg, ok = rawMsg.(string)
	if !ok {
		return "", "", false
	}
	name, _ = m["name"].(string)
	_, hasStack := m["stack"]
	if name == "" && !hasStack {
		return "", "", false
	}
	return name, msg, true
}

// ConsoleBatch carries all issues accumulated during one test, sent once per
// test rather than once per issue.
type ConsoleBatch struct {
	Issues    []Issue `json:"issues"`
	TestPath  string  `json:"testPath"`
	LogToFile bool    `json:"logToFile"`
}

// LegacyIssue is the payload of the pre-batching single-issue call.
type LegacyIssue struct {
	Message  string    `json:"message"`
	Type     IssueType `json:"type"`
	TestPath string    `json:"testPath,omitempty"`
}

// Detail is one recorded issue in the run-wide statistics.
type Detail struct {
	Type    IssueType `json:"type"`
	Message string    `json:"message"`
}

// ErrorStats are the run-wide statistics kept by the aggregator.
type ErrorStats struct {
	Errors   int      `json:"errors"`
	Warnings int      `json:"warnings"`
	Details  []Detail `json:"details"`
}

// Dispatcher invokes a named out-of-process procedure with a payload and
// awaits its result. Calls are dispatched one at a time; there is no
// cancellation once a call has been issued.
type Dispatcher interface {
	Call(ctx context.Context, method string, params, result any) error
}

// HandlerFunc handles one bridge call. Returning a nil value produces a null
// result on the wire.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Registry is where callees expose their procedures.
type Registry interface {
	Handle(method string, h HandlerFunc)
}

// CallError is a failure reported by the remote end of the bridge.
type CallError struct {
	Method  string
	Message string
}

func (e *CallError) Error() string {
	return "bridge call " + e.Method + ": " + e.Message
}
