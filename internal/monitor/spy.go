package monitor

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/conwatch/conwatch/internal/bridge"
)

// issueBuffer accumulates the issues observed during the currently executing
// test. The page-error callback fires on the automation layer's goroutine
// while spy drains happen on the test pipeline, so appends are locked.
type issueBuffer struct {
	mu     sync.Mutex
	issues []bridge.Issue
}

func (b *issueBuffer) Append(issues ...bridge.Issue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issues = append(b.issues, issues...)
}

// Drain returns the accumulated issues and clears the buffer.
func (b *issueBuffer) Drain() []bridge.Issue {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.issues
	b.issues = nil
	return out
}

func (b *issueBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issues = nil
}

// spyManager owns the console spies attached to the active window and the
// per-window uncaught-error listeners.
type spyManager struct {
	logger logrus.FieldLogger
	buf    *issueBuffer
	spies  map[string]Spy
	// errorListeners records the target IDs that already carry an
	// uncaught-error listener. Keying by ID keeps the association
	// non-owning: a navigated-away window isn't retained by this map.
	errorListeners map[string]struct{}
}

func newSpyManager(buf *issueBuffer, logger logrus.FieldLogger) *spyManager {
	return &spyManager{
		logger:         logger,
		buf:            buf,
		spies:          make(map[string]Spy),
		errorListeners: make(map[string]struct{}),
	}
}

// Setup attaches one spy per tracked console method on win. Spies left over
// from a previous page are drained into the issue buffer first, so calls
// recorded between teardown and this setup are never lost. Every attach is
// isolated: one method failing must not block the others.
func (sm *spyManager) Setup(win Window, methods []string) {
	sm.Collect()
	sm.Teardown()

	for _, method := range methods {
		spy, err := win.SpyOn(method)
		if err != nil {
			if errors.Is(err, ErrMethodMissing) {
				sm.logger.WithField("method", method).Debug("console method not present, skipping spy")
			} else {
				sm.logger.WithError(err).WithField("method", method).Debug("attaching console spy failed")
			}
			continue
		}
		sm.spies[method] = spy
	}

	sm.ensureErrorListener(win)
}

// Collect drains every attached spy into the issue buffer.
func (sm *spyManager) Collect() {
	for method, spy := range sm.spies {
		for _, args := range spy.Drain() {
			sm.buf.Append(NewIssue(method, args))
		}
	}
}

// Teardown releases every attached spy. Safe to call repeatedly; release
// failures are diagnostics only.
func (sm *spyManager) Teardown() {
	for method, spy := range sm.spies {
		if err := spy.Release(); err != nil {
			sm.logger.WithError(err).WithField("method", method).Debug("releasing console spy failed")
		}
		delete(sm.spies, method)
	}
}

// ensureErrorListener attaches the uncaught-error listener exactly once per
// distinct window for the life of that window.
func (sm *spyManager) ensureErrorListener(win Window) {
	id := win.TargetID()
	if _, ok := sm.errorListeners[id]; ok {
		return
	}

	err := win.OnPageError(func(e PageError) {
		// Append only. Reporting happens from the test pipeline, so this
		// truly asynchronous callback can't interleave a bridge call with
		// queued test commands.
		sm.buf.Append(NewUncaughtErrorIssue(e))
	})
	if err != nil {
		sm.logger.WithError(err).WithField("target_id", id).Debug("attaching page error listener failed")
		return
	}
	sm.errorListeners[id] = struct{}{}
}
