// Package aggregator is the host-process half of conwatch. It receives
// batched issue reports from the monitor, keeps run-wide error statistics,
// appends issues to per-test log files and prints the summary at run
// boundaries. Everything it does is secondary observability: none of its
// failures may ever fail a test or the run.
package aggregator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/conwatch/conwatch/internal/bridge"
)

// DefaultLogDir is where per-test log files land when no directory is
// configured, relative to the working directory.
const DefaultLogDir = "logs/console"

// legacyLogFile is the single shared log the pre-batching versions wrote,
// removed best-effort at run start so old and new artifacts don't mix.
const legacyLogFile = "console_errors.log"

// Aggregator holds the run-wide statistics and the log-file state. The host
// environment dispatches bridge calls one at a time, so no locking is done
// here; a concurrent host must serialize dispatch (see bridge.Local and
// bridge.Server, which both do).
type Aggregator struct {
	logger logrus.FieldLogger
	fs     afero.Fs
	logDir string

	stats      bridge.ErrorStats
	debug      bool
	dirCreated bool

	now func() time.Time
}

// New returns an Aggregator writing log files under logDir on fs. An empty
// logDir selects DefaultLogDir.
func New(fs afero.Fs, logDir string, logger logrus.FieldLogger) *Aggregator {
	if logDir == "" {
		logDir = DefaultLogDir
	}
	return &Aggregator{
		logger: logger,
		fs:     fs,
		logDir: logDir,
		now:    time.Now,
	}
}

// ProcessBatch folds one test's issues into the run statistics and, when the
// batch asks for it, appends them to the test's log file. An empty batch is
// a no-op. Write failures are diagnostics only and never propagate.
func (a *Aggregator) ProcessBatch(batch bridge.ConsoleBatch) {
	if len(batch.Issues) == 0 {
		return
	}

	for _, issue := range batch.Issues {
		switch issue.Type {
		case bridge.TypeError:
			a.stats.Errors++
		case bridge.TypeWarn:
			a.stats.Warnings++
		}
		a.stats.Details = append(a.stats.Details, bridge.Detail{
			Type:    issue.Type,
			Message: issue.Display(),
		})
	}

	if batch.LogToFile {
		if err := a.appendToLog(batch.TestPath, batch.Issues); err != nil {
			a.diag(err, "appending console issues to log file failed")
		}
	}
}

// ProcessIssue handles the legacy single-issue call. It only feeds the
// statistics; per-test log files need the batched call.
func (a *Aggregator) ProcessIssue(issue bridge.LegacyIssue) {
	a.ProcessBatch(bridge.ConsoleBatch{
		Issues: []bridge.Issue{{
			Type:       issue.Type,
			Message:    []any{issue.Message},
			RawMessage: issue.Message,
		}},
		TestPath: issue.TestPath,
	})
}

// GetStats returns a snapshot copy of the run statistics, never a live
// reference.
func (a *Aggregator) GetStats() bridge.ErrorStats {
	out := bridge.ErrorStats{
		Errors:   a.stats.Errors,
		Warnings: a.stats.Warnings,
	}
	if a.stats.Details != nil {
		out.Details = append([]bridge.Detail(nil), a.stats.Details...)
	}
	return out
}

// ResetStats zeroes the counters and clears the details.
func (a *Aggregator) ResetStats() {
	a.stats = bridge.ErrorStats{}
}

// SetDebugMode toggles verbose diagnostics and detail printing in the run
// summary. This flag is the aggregator's own storage; the monitor keeps its
// debug state on the other side of the bridge.
func (a *Aggregator) SetDebugMode(debug bool) {
	a.debug = debug
}

// HandleRunStart resets the run-wide state. Any leftover single-file log
// from a pre-batching version is removed best-effort.
func (a *Aggregator) HandleRunStart() {
	a.ResetStats()
	a.dirCreated = false

	legacy := filepath.Join(filepath.Dir(a.logDir), legacyLogFile)
	if err := a.fs.Remove(legacy); err != nil && !os.IsNotExist(err) {
		a.diag(err, "removing stale legacy log file failed")
	}
}

// HandleRunEnd prints the error and warning totals to w. With debug mode on,
// every recorded detail is printed in order.
func (a *Aggregator) HandleRunEnd(w io.Writer) {
	fmt.Fprintf(w, "console watch summary: %s, %s\n",
		color.New(color.FgRed).Sprintf("%d error(s)", a.stats.Errors),
		color.New(color.FgYellow).Sprintf("%d warning(s)", a.stats.Warnings))

	if !a.debug {
		return
	}
	for _, d := range a.stats.Details {
		fmt.Fprintf(w, "  - [%s] %s\n", strings.ToUpper(string(d.Type)), d.Message)
	}
}

// Register exposes the aggregator's operations on a bridge registry.
func (a *Aggregator) Register(r bridge.Registry) {
	r.Handle(bridge.MethodProcessConsoleBatch, func(_ context.Context, params json.RawMessage) (any, error) {
		var batch bridge.ConsoleBatch
		if err := json.Unmarshal(params, &batch); err != nil {
			return nil, fmt.Errorf("decoding console batch: %w", err)
		}
		a.ProcessBatch(batch)
		return nil, nil
	})
	r.Handle(bridge.MethodGetErrorStats, func(context.Context, json.RawMessage) (any, error) {
		return a.GetStats(), nil
	})
	r.Handle(bridge.MethodResetErrorStats, func(context.Context, json.RawMessage) (any, error) {
		a.ResetStats()
		return nil, nil
	})
	r.Handle(bridge.MethodSetDebugMode, func(_ context.Context, params json.RawMessage) (any, error) {
		var debug bool
		if err := json.Unmarshal(params, &debug); err != nil {
			return nil, fmt.Errorf("decoding debug flag: %w", err)
		}
		a.SetDebugMode(debug)
		return nil, nil
	})
	r.Handle(bridge.MethodReportConsoleIssue, func(_ context.Context, params json.RawMessage) (any, error) {
		var issue bridge.LegacyIssue
		if err := json.Unmarshal(params, &issue); err != nil {
			return nil, fmt.Errorf("decoding legacy issue: %w", err)
		}
		a.ProcessIssue(issue)
		return nil, nil
	})
}

// appendToLog appends one line per issue to the test's log file, creating
// the log directory on the first write of the run.
func (a *Aggregator) appendToLog(testPath string, issues []bridge.Issue) error {
	if err := a.ensureLogDir(); err != nil {
		return err
	}

	name := logFileName(testPath)
	f, err := a.fs.OpenFile(filepath.Join(a.logDir, name), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %q: %w", name, err)
	}
	defer f.Close() //nolint:errcheck

	bw := bufio.NewWriter(f)
	stamp := a.now().UTC().Format(time.RFC3339)
	for _, issue := range issues {
		fmt.Fprintf(bw, "[%s] [%s]: %s\n", stamp, strings.ToUpper(string(issue.Type)), issue.Display())
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing log file %q: %w", name, err)
	}
	return nil
}

// ensureLogDir creates the log directory recursively, once per run.
func (a *Aggregator) ensureLogDir() error {
	if a.dirCreated {
		return nil
	}
	if err := a.fs.MkdirAll(a.logDir, 0o755); err != nil {
		return fmt.Errorf("creating log directory %q: %w", a.logDir, err)
	}
	a.dirCreated = true
	return nil
}

// diag records an infrastructure failure. Secondary failures surface as
// warnings only in debug mode and stay at debug level otherwise; they never
// propagate.
func (a *Aggregator) diag(err error, msg string) {
	entry := a.logger.WithError(err)
	if a.debug {
		entry.Warn(msg)
	} else {
		entry.Debug(msg)
	}
}

// logFileName derives the per-test log file name from the test's path: the
// file name stem with the extension stripped, or unknown_test when the path
// is empty or malformed.
func logFileName(testPath string) string {
	base := filepath.Base(testPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "unknown_test.log"
	}
	return stem + ".log"
}
