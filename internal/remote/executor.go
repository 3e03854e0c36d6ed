package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/urbandriving/engine/internal/dispatcher"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
	"github.com/urbandriving/engine/pkg/streaming"
)

var (
	// ErrRemote wraps an error reported by the agent server.
	ErrRemote = errors.New("remote agent error")
	// ErrDisconnected is returned for tasks pending when the connection drops.
	ErrDisconnected = errors.New("agent server disconnected")
)

// Executor forwards tasks to an agent server. The task's local agent is not used:
// the server builds and keeps its own agent for every ref. A new state pointer
// starts a new remote session, so each reset gets fresh remote agents.
type Executor struct {
	conn   *ws.Conn
	logger *slog.Logger

	mu       sync.Mutex
	pending  map[uint64]*future
	nextID   uint64
	session  uint64
	last     *state.State
	lastTime int
	closed   bool

	readDone chan struct{}
}

var _ dispatcher.Executor = (*Executor)(nil)

// Dial connects to the agent server at url.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Executor, error) {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	e := &Executor{
		conn:     conn,
		logger:   logger,
		pending:  make(map[uint64]*future),
		readDone: make(chan struct{}),
	}
	go e.readLoop()
	return e, nil
}

// Submit sends the task's snapshot (when it changed) and the evaluation request.
func (e *Executor) Submit(_ context.Context, t dispatcher.Task) dispatcher.Future {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return failed(ErrDisconnected)
	}
	s := t.Request.State
	if s != e.last || s.Time != e.lastTime {
		if s != e.last {
			e.session++
		}
		raw, err := json.Marshal(s)
		if err != nil {
			return failed(fmt.Errorf("marshal state: %w", err))
		}
		if err := e.write(streaming.TypeState, streaming.StatePayload{Session: e.session, State: raw}); err != nil {
			return failed(err)
		}
		e.last, e.lastTime = s, s.Time
	}

	e.nextID++
	id := e.nextID
	f := newFuture()
	e.pending[id] = f
	err := e.write(streaming.TypeEvaluate, streaming.EvaluatePayload{
		ID:         id,
		Group:      t.Ref.Group.String(),
		Index:      t.Ref.Index,
		Simplified: t.Request.Simplified,
		Input:      t.Request.Input,
	})
	if err != nil {
		delete(e.pending, id)
		return failed(err)
	}
	return f
}

// write must be called with mu held; gorilla connections allow one writer.
func (e *Executor) write(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	if err := e.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	if err := e.conn.WriteMessage(ws.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

// readLoop routes results to their futures until the connection ends.
func (e *Executor) readLoop() {
	defer close(e.readDone)
	for {
		_, msg, err := e.conn.ReadMessage()
		if err != nil {
			e.failAll(fmt.Errorf("%w: %v", ErrDisconnected, err))
			return
		}
		var env streaming.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Type != streaming.TypeResult {
			e.logger.Debug("Non-result message received", "raw", string(msg))
			continue
		}
		var res streaming.ResultPayload
		if err := json.Unmarshal(env.Payload, &res); err != nil {
			e.logger.Debug("Malformed result payload", "error", err)
			continue
		}

		e.mu.Lock()
		f, ok := e.pending[res.ID]
		delete(e.pending, res.ID)
		e.mu.Unlock()
		if !ok {
			continue
		}
		if res.Error != "" {
			f.resolve(core.Action{}, fmt.Errorf("%w: %s", ErrRemote, res.Error))
		} else {
			f.resolve(res.Action, nil)
		}
	}
}

func (e *Executor) failAll(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for id, f := range e.pending {
		f.resolve(core.Action{}, err)
		delete(e.pending, id)
	}
}

// Close sends a close frame and waits for the read loop to finish.
func (e *Executor) Close() error {
	e.mu.Lock()
	if !e.closed {
		_ = e.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	}
	e.mu.Unlock()

	err := e.conn.Close()
	<-e.readDone
	return err
}

type future struct {
	once   sync.Once
	done   chan struct{}
	action core.Action
	err    error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func failed(err error) *future {
	f := newFuture()
	f.resolve(core.Action{}, err)
	return f
}

func (f *future) resolve(a core.Action, err error) {
	f.once.Do(func() {
		f.action, f.err = a, err
		close(f.done)
	})
}

func (f *future) Wait(ctx context.Context) (core.Action, error) {
	select {
	case <-f.done:
		return f.action, f.err
	case <-ctx.Done():
		return core.Action{}, ctx.Err()
	}
}
