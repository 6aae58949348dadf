package monitor

import (
	"context"
	"errors"

	"github.com/conwatch/conwatch/internal/bridge"
)

// ErrMethodMissing is returned by Window.SpyOn when the page's console does
// not expose the requested method. The monitor skips such methods silently.
var ErrMethodMissing = errors.New("console method not present on window")

// Session is the narrow surface the monitor needs from the browser
// automation layer to reach the page under test.
type Session interface {
	// ActiveWindow returns a handle to the currently focused window.
	ActiveWindow(ctx context.Context) (Window, error)
}

// Window is one browser window (or tab) handle. A window keeps its target ID
// across navigations; a fresh window gets a fresh ID.
type Window interface {
	// TargetID identifies this window for the duration of its life.
	TargetID() string
	// SpyOn wraps the named console method with an observer that records
	// every call's arguments without altering the method's behavior.
	SpyOn(method string) (Spy, error)
	// OnPageError registers a handler for uncaught errors raised in the
	// page. The handler may fire on the automation layer's own goroutine.
	OnPageError(handler func(PageError)) error
}

// Spy is an observable wrapper around a single console method.
type Spy interface {
	// Drain returns the recorded calls and clears the record.
	Drain() [][]any
	// Release restores the original method.
	Release() error
}

// PageError describes one uncaught error raised in the page.
type PageError struct {
	Description string
	URL         string
	Line        int
}

// Classify maps a console method name to an issue type. Everything that is
// neither error nor warn (log, info, debug, ...) is informational.
func Classify(method string) bridge.IssueType {
	switch method {
	case "error":
		return bridge.TypeError
	case "warn":
		return bridge.TypeWarn
	default:
		return bridge.TypeInfo
	}
}
