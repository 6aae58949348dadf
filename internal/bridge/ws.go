package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultEndpointPath is the URL path the websocket bridge is served under.
const DefaultEndpointPath = "/bridge"

// frame is one bridge message on the wire. Requests carry Method and Params,
// responses echo the request ID and carry Result or Error.
type frame struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Server hosts bridge procedures over a websocket endpoint. Frames on a
// connection are handled strictly in arrival order, one at a time, which is
// the dispatch guarantee the aggregator relies on instead of locking.
type Server struct {
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
	local    *Local
}

var _ Registry = &Server{}
var _ http.Handler = &Server{}

// NewServer returns a Server with no procedures registered yet.
func NewServer(logger logrus.FieldLogger) *Server {
	return &Server{
		logger: logger,
		local:  NewLocal(),
	}
}

// Handle registers h for method, replacing any previous handler.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.local.Handle(method, h)
}

// ServeHTTP upgrades the connection and serves bridge calls on it until the
// peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("bridge websocket upgrade failed")
		return
	}
	defer conn.Close() //nolint:errcheck

	for {
		var req frame
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).Debug("bridge connection closed unexpectedly")
			}
			return
		}

		resp := frame{ID: req.ID}
		out, err := s.local.dispatch(r.Context(), req.Method, req.Params)
		switch {
		case err != nil:
			resp.Error = err.Error()
		case out != nil:
			b, merr := json.Marshal(out)
			if merr != nil {
				resp.Error = fmt.Sprintf("encoding %s result: %s", req.Method, merr)
			} else {
				resp.Result = b
			}
		}

		if err := conn.WriteJSON(resp); err != nil {
			s.logger.WithError(err).Debug("writing bridge response failed")
			return
		}
	}
}

// Client calls bridge procedures over a websocket connection. A mutex keeps
// at most one request in flight, matching the protocol's strictly sequential
// request/response pairing.
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
	logger logrus.FieldLogger
}

var _ Dispatcher = &Client{}

// Dial connects to the bridge endpoint at addr (host:port).
func Dial(ctx context.Context, addr string, logger logrus.FieldLogger) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: DefaultEndpointPath}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("dialing bridge endpoint %q: %w", u.String(), err)
	}
	return &Client{conn: conn, logger: logger}, nil
}

// Call sends one request frame and blocks until the matching response
// arrives. A context deadline, when set, bounds both the write and the wait.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := frame{ID: c.nextID, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %s params: %w", method, err)
		}
		req.Params = b
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		_ = c.conn.SetReadDeadline(deadline)
	}

	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}

	var resp frame
	for {
		if err := c.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("awaiting %s response: %w", method, err)
		}
		if resp.ID == req.ID {
			break
		}
		// A response to an abandoned earlier call; skip it.
		c.logger.WithField("id", resp.ID).Debug("dropping stale bridge response")
	}

	if resp.Error != "" {
		return &CallError{Method: method, Message: resp.Error}
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding %s response: %w", method, err)
		}
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if cerr := c.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
