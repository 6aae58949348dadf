package monitor

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/conwatch/conwatch/internal/bridge"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeSpy struct {
	method     string
	calls      [][]any
	released   bool
	releaseErr error
}

func (s *fakeSpy) Drain() [][]any {
	out := s.calls
	s.calls = nil
	return out
}

func (s *fakeSpy) Release() error {
	s.released = true
	return s.releaseErr
}

type fakeWindow struct {
	id          string
	missing     map[string]bool
	errOn       map[string]error
	handlerErr  error
	attachCount map[string]int
	active      map[string]*fakeSpy
	all         []*fakeSpy
	handlers    []func(PageError)
}

func newFakeWindow(id string) *fakeWindow {
	return &fakeWindow{
		id:          id,
		missing:     make(map[string]bool),
		errOn:       make(map[string]error),
		attachCount: make(map[string]int),
		active:      make(map[string]*fakeSpy),
	}
}

func (w *fakeWindow) TargetID() string { return w.id }

func (w *fakeWindow) SpyOn(method string) (Spy, error) {
	if w.missing[method] {
		return nil, ErrMethodMissing
	}
	if err := w.errOn[method]; err != nil {
		return nil, err
	}
	s := &fakeSpy{method: method}
	w.attachCount[method]++
	w.active[method] = s
	w.all = append(w.all, s)
	return s, nil
}

func (w *fakeWindow) OnPageError(h func(PageError)) error {
	if w.handlerErr != nil {
		return w.handlerErr
	}
	w.handlers = append(w.handlers, h)
	return nil
}

// emit records one console call on the currently attached spy for method.
func (w *fakeWindow) emit(method string, args ...any) {
	if s, ok := w.active[method]; ok {
		s.calls = append(s.calls, args)
	}
}

// raise fires every registered uncaught-error handler.
func (w *fakeWindow) raise(e PageError) {
	for _, h := range w.handlers {
		h(e)
	}
}

type fakeSession struct {
	win Window
	err error
}

func (s *fakeSession) ActiveWindow(context.Context) (Window, error) {
	return s.win, s.err
}

type recordedCall struct {
	method string
	params any
}

type fakeDispatcher struct {
	calls []recordedCall
	err   error
}

func (d *fakeDispatcher) Call(_ context.Context, method string, params, _ any) error {
	d.calls = append(d.calls, recordedCall{method: method, params: params})
	return d.err
}

func (d *fakeDispatcher) batches() []bridge.ConsoleBatch {
	var out []bridge.ConsoleBatch
	for _, call := range d.calls {
		if call.method == bridge.MethodProcessConsoleBatch {
			out = append(out, call.params.(bridge.ConsoleBatch))
		}
	}
	return out
}
