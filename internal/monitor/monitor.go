// Package monitor is the browser-context half of conwatch. It wraps suite
// and test registration, spies on the console methods of the active window,
// captures uncaught page errors, filters what it saw against the
// consolidated whitelist and, policy permitting, turns the remainder into
// the test's failure. Filtered issues are handed to the host-process
// aggregator in a single batch per test over a bridge.Dispatcher.
package monitor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/conwatch/conwatch/internal/bridge"
)

// TestFunc is a wrapped or original test body.
type TestFunc func(ctx context.Context) error

// SuiteMiddleware wraps one suite registration: it receives the suite's name,
// optional config override and registration body, and returns the body the
// framework should actually run.
type SuiteMiddleware func(name string, cfg *Config, register func()) func()

// TestMiddleware wraps one test registration.
type TestMiddleware func(path string, cfg *Config, body TestFunc) TestFunc

// Hooks is the registration hook point an embedding test framework can
// expose so conwatch wraps every declaration transparently. Frameworks
// without such a hook point call Monitor.Suite and Monitor.Test directly.
type Hooks interface {
	OnSuite(mw SuiteMiddleware)
	OnTest(mw TestMiddleware)
}

// phase names one stage of the per-test pipeline. Transitions are debug
// logged so the strictly sequential ordering is visible when debugging.
type phase string

const (
	phaseSpying    phase = "spying"
	phaseExecuting phase = "executing"
	phaseCollect   phase = "collecting"
	phaseReporting phase = "reporting"
	phaseEvaluate  phase = "evaluating"
	phaseCleanedUp phase = "cleaned_up"
)

// Monitor intercepts console output and uncaught errors for every wrapped
// test. It is driven by the test runner's sequential command queue and is
// not safe for use from multiple test runners at once.
type Monitor struct {
	logger     logrus.FieldLogger
	session    Session
	dispatcher bridge.Dispatcher
	global     Config

	suiteStack []Config
	buf        issueBuffer
	spies      *spyManager
}

// New returns a Monitor using the given global configuration layer. Debug
// verbosity follows the logger's level; global.Debug is forwarded to the
// aggregator by Init.
func New(session Session, dispatcher bridge.Dispatcher, global Config, logger logrus.FieldLogger) *Monitor {
	m := &Monitor{
		logger:     logger,
		session:    session,
		dispatcher: dispatcher,
		global:     global,
	}
	m.spies = newSpyManager(&m.buf, logger)
	return m
}

// Init pushes the monitor-side settings the aggregator needs to know about.
// Called once before any test runs.
func (m *Monitor) Init(ctx context.Context) error {
	if !m.global.Debug.Valid {
		return nil
	}
	return m.dispatcher.Call(ctx, bridge.MethodSetDebugMode, m.global.Debug.Bool, nil)
}

// Attach registers the monitor's middlewares on a framework's hook point.
func (m *Monitor) Attach(h Hooks) {
	h.OnSuite(func(name string, cfg *Config, register func()) func() {
		return func() { m.Suite(name, cfg, register) }
	})
	h.OnTest(m.Test)
}

// Suite runs register with cfg pushed as the innermost suite override.
// Suites nest; each test registered inside captures the suite configuration
// resolved at registration time, because test bodies execute in a second
// pass after every registration callback has already returned.
func (m *Monitor) Suite(name string, cfg *Config, register func()) {
	_ = name
	var layer Config
	if cfg != nil {
		layer = *cfg
	}
	m.suiteStack = append(m.suiteStack, layer)
	defer func() {
		m.suiteStack = m.suiteStack[:len(m.suiteStack)-1]
	}()
	register()
}

// suiteConfig flattens the current suite stack, outermost first.
func (m *Monitor) suiteConfig() Config {
	var cfg Config
	for _, layer := range m.suiteStack {
		cfg = cfg.Apply(layer)
	}
	return cfg
}

// Test wraps body so console issues observed while it runs are collected,
// reported to the aggregator and, policy permitting, turned into the test's
// failure. cfg is the test-level override; nil means no override.
func (m *Monitor) Test(path string, cfg *Config, body TestFunc) TestFunc {
	suiteCfg := m.suiteConfig()
	var testCfg Config
	if cfg != nil {
		testCfg = *cfg
	}
	return func(ctx context.Context) error {
		return m.runTest(ctx, path, suiteCfg, testCfg, body)
	}
}

// runTest is the per-test pipeline: spy setup, body execution, collection,
// one batched report, fail-policy evaluation, teardown. Collection runs on
// the failure path too, so issues aren't lost when the body throws for
// unrelated reasons, and teardown runs on every exit path.
func (m *Monitor) runTest(ctx context.Context, path string, suiteCfg, testCfg Config, body TestFunc) error {
	merged := Consolidate(m.global, suiteCfg, testCfg)
	log := m.logger.WithField("test", path)

	m.setPhase(log, phaseSpying)
	m.buf.Reset()
	m.spies.Teardown()

	win, err := m.session.ActiveWindow(ctx)
	if err != nil {
		// Observation is secondary: the body still runs without spies.
		log.WithError(err).Debug("no active window, console spies disabled")
	} else {
		m.spies.Setup(win, merged.MethodsToTrack)
	}

	defer func() {
		m.spies.Teardown()
		m.setPhase(log, phaseCleanedUp)
	}()

	m.setPhase(log, phaseExecuting)
	bodyErr := body(ctx)

	m.setPhase(log, phaseCollect)
	m.spies.Collect()
	filtered := Filter(m.buf.Drain(), merged)

	m.setPhase(log, phaseReporting)
	if len(filtered) > 0 {
		if err := m.report(ctx, path, filtered, merged); err != nil {
			log.WithError(err).Debug("reporting console issues failed")
		}
	}

	m.setPhase(log, phaseEvaluate)
	if bodyErr != nil {
		// First failure wins: a genuine test failure is never masked by a
		// console-issue failure.
		return bodyErr
	}
	if len(filtered) > 0 && merged.FailOnSpy.Bool {
		return &ConsoleIssueError{Issues: filtered}
	}
	return nil
}

func (m *Monitor) report(ctx context.Context, path string, issues []bridge.Issue, merged Config) error {
	batch := bridge.ConsoleBatch{
		Issues:    issues,
		TestPath:  path,
		LogToFile: merged.LogToFile.Bool,
	}
	return m.dispatcher.Call(ctx, bridge.MethodProcessConsoleBatch, batch, nil)
}

// Stats fetches the run-wide statistics from the aggregator, typically for
// user assertions on accumulated console errors.
func (m *Monitor) Stats(ctx context.Context) (bridge.ErrorStats, error) {
	var stats bridge.ErrorStats
	err := m.dispatcher.Call(ctx, bridge.MethodGetErrorStats, nil, &stats)
	return stats, err
}

// ResetStats clears the run-wide statistics.
func (m *Monitor) ResetStats(ctx context.Context) error {
	return m.dispatcher.Call(ctx, bridge.MethodResetErrorStats, nil, nil)
}

func (m *Monitor) setPhase(log logrus.FieldLogger, p phase) {
	log.WithField("phase", string(p)).Debug("console watch phase")
}
