package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Local dispatches bridge calls in-process. Handlers run under a single lock
// so the one-at-a-time dispatch guarantee remote hosts provide holds here
// too. Payloads still round-trip through JSON, the same as a remote hop, so
// both dispatchers behave identically.
type Local struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
}

var _ Dispatcher = &Local{}
var _ Registry = &Local{}

// NewLocal returns an empty in-process dispatcher.
func NewLocal() *Local {
	return &Local{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for method, replacing any previous handler.
func (l *Local) Handle(method string, h HandlerFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[method] = h
}

// Call invokes the handler registered for method and decodes its return
// value into result, when both are non-nil.
func (l *Local) Call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}

	out, err := l.dispatch(ctx, method, raw)
	if err != nil {
		return err
	}
	if result == nil || out == nil {
		return nil
	}

	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding %s result: %w", method, err)
	}
	if err := json.Unmarshal(b, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

func (l *Local) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handlers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return h(ctx, params)
}
