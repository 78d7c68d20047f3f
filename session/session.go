// Package session carries the script-execution channel between the host
// process and a live page. Two operations cross it: execute
// (fire-and-forget) and evaluate (value-returning, with timeout).
// Frames are JSON; the browser end lives in the web package.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stelwidget/stelwidget/bridge"
)

// frame is one message in either direction. Requests carry Op and Src;
// responses echo ID with Value or Error. ID 0 means no reply expected.
type frame struct {
	ID    uint64          `json:"id,omitempty"`
	Op    string          `json:"op,omitempty"` // "exec" or "eval"
	Src   string          `json:"src,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// ErrClosed is returned for operations on a session whose connection has
// gone away.
var ErrClosed = errors.New("session: closed")

// Session is one live page connection. It implements
// bridge.ScriptRunner.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan frame
	closed  bool
}

// New wraps an established websocket connection and starts its read
// loop.
func New(conn *websocket.Conn) *Session {
	s := &Session{
		conn:    conn,
		pending: make(map[uint64]chan frame),
	}
	go s.readLoop()
	return s
}

var upgrader = websocket.Upgrader{
	// The channel serves pages the same process rendered; cross-origin
	// pages have no business here but dev hosts vary, so the handler
	// accepts and relies on the session URL being unguessable in real
	// deployments being out of scope.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades incoming requests and hands each session to Accept.
type Handler struct {
	Accept func(s *Session, r *http.Request)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger().Warn("session upgrade failed", zap.Error(err))
		return
	}
	Logger().Info("session connected", zap.String("remote", conn.RemoteAddr().String()))
	h.Accept(New(conn), r)
}

// Execute sends src for fire-and-forget execution. Success means the
// frame left the connection, nothing more.
func (s *Session) Execute(ctx context.Context, src string) error {
	return s.write(frame{Op: "exec", Src: src})
}

// Evaluate sends src for evaluation and suspends until the decoded
// result, a remote error (*bridge.Error), ctx cancellation, or the
// timeout. A timeout <= 0 falls back to 10s so a dead page cannot hang
// the caller forever.
func (s *Session) Evaluate(ctx context.Context, src string, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextID++
	id := s.nextID
	ch := make(chan frame, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(frame{ID: id, Op: "eval", Src: src}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("session: evaluate timed out after %v", timeout)
	case f, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if f.Error != "" {
			return nil, &bridge.Error{Expr: src, Remote: f.Error}
		}
		if len(f.Value) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(f.Value, &v); err != nil {
			return nil, &bridge.Error{Expr: src, Remote: fmt.Sprintf("decode result: %v", err)}
		}
		return v, nil
	}
}

func (s *Session) write(f frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("session: encode frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

func (s *Session) readLoop() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(err)
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			Logger().Warn("session: bad frame", zap.Error(err))
			continue
		}
		if f.ID == 0 {
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[f.ID]
		s.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (s *Session) shutdown(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		Logger().Info("session closed", zap.Error(cause))
	}
}

// Close tears the connection down. Pending evaluates fail with
// ErrClosed.
func (s *Session) Close() error {
	s.shutdown(nil)
	return s.conn.Close()
}

var _ bridge.ScriptRunner = (*Session)(nil)
