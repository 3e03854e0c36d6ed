// Package remote evaluates background policies in a separate agent-server
// process over WebSocket. The server owns the agents and their memory; the
// client side is a dispatcher.Executor.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/urbandriving/engine/internal/agent"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
	"github.com/urbandriving/engine/pkg/streaming"
)

const (
	writeWait       = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

var errNoState = errors.New("no state received for this session")

// Server hosts agents for remote clients. Each connection has its own agents,
// rebuilt whenever the client starts a new session.
type Server struct {
	registry *agent.Registry
	logger   *slog.Logger
	upgrader ws.Upgrader
}

// NewServer creates a server that builds agents from the registry.
func NewServer(registry *agent.Registry, logger *slog.Logger) *Server {
	return &Server{
		registry: registry,
		logger:   logger,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// ListenAndServe serves the agent endpoint on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, s)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: writeWait}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Agent server listening", "addr", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ServeHTTP upgrades the request and serves one client until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer c.Close()

	s.logger.Debug("Agent client connected", "remote", r.RemoteAddr)
	sess := &session{}
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			s.logger.Debug("Malformed message received", "raw", string(msg))
			continue
		}

		switch env.Type {
		case streaming.TypeState:
			if err := sess.replace(env.Payload); err != nil {
				s.logger.Error("Failed to decode state", "error", err)
			}
		case streaming.TypeEvaluate:
			var p streaming.EvaluatePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				s.logger.Debug("Malformed evaluate payload", "error", err)
				continue
			}
			res := s.evaluate(r.Context(), sess, p)
			data, err := streaming.Marshal(streaming.TypeResult, res)
			if err != nil {
				s.logger.Error("Failed to encode result", "error", err)
				return
			}
			if err := c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.WriteMessage(ws.TextMessage, data); err != nil {
				s.logger.Warn("WebSocket write error", "error", err)
				return
			}
		default:
			s.logger.Debug("Unknown message type", "type", env.Type)
		}
	}
}

func (s *Server) evaluate(ctx context.Context, sess *session, p streaming.EvaluatePayload) streaming.ResultPayload {
	res := streaming.ResultPayload{ID: p.ID}
	a, err := s.evaluateRef(ctx, sess, p)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Action = a
	return res
}

func (s *Server) evaluateRef(ctx context.Context, sess *session, p streaming.EvaluatePayload) (core.Action, error) {
	if sess.state == nil {
		return core.Action{}, errNoState
	}
	g, err := state.ParseGroup(p.Group)
	if err != nil {
		return core.Action{}, err
	}
	ref := state.Ref{Group: g, Index: p.Index}
	ag, ok := sess.agents[ref]
	if !ok {
		obj, found := sess.state.Get(ref)
		if !found {
			return core.Action{}, fmt.Errorf("%w: %s", state.ErrUnknownRef, ref)
		}
		ag = s.registry.For(ref, obj)
		sess.agents[ref] = ag
	}
	return ag.EvalPolicy(ctx, agent.Request{State: sess.state, Input: p.Input, Simplified: p.Simplified})
}

// session is the per-connection agent memory.
type session struct {
	id     uint64
	state  *state.State
	agents map[state.Ref]agent.Agent
}

func (s *session) replace(payload json.RawMessage) error {
	var p streaming.StatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	st := &state.State{}
	if err := json.Unmarshal(p.State, st); err != nil {
		return err
	}
	if s.agents == nil || p.Session != s.id {
		s.id = p.Session
		s.agents = make(map[state.Ref]agent.Agent)
	}
	s.state = st
	return nil
}
