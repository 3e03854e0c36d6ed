// Package websocket streams episodes to a remote server over a WebSocket.
// Episode start and end wait for the server's ack; ticks are fire-and-forget.
package websocket

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/pkg/core"
	"github.com/urbandriving/engine/pkg/streaming"
)

const defaultAckTimeout = 10 * time.Second

// Backend streams episode data to a WebSocket server.
type Backend struct {
	conn       *connection
	cfg        config.WebSocketConfig
	log        *slog.Logger
	ackTimeout time.Duration
}

// Option adjusts a Backend.
type Option func(*Backend)

// WithAckTimeout bounds how long StartEpisode and EndEpisode wait for the server.
func WithAckTimeout(d time.Duration) Option {
	return func(b *Backend) { b.ackTimeout = d }
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, log *slog.Logger, opts ...Option) *Backend {
	if log == nil {
		log = slog.Default()
	}
	b := &Backend{
		conn:       newConnection(log),
		cfg:        cfg,
		log:        log,
		ackTimeout: defaultAckTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}
	b.log.Info("Streaming episodes", "url", b.cfg.URL)
	return nil
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	if n := b.conn.dropped.Load(); n > 0 {
		b.log.Warn("Messages dropped while streaming", "count", n)
	}
	return b.conn.close()
}

// StartEpisode announces the episode and waits for the server's ack.
func (b *Backend) StartEpisode(e *core.Episode) error {
	data, err := streaming.Marshal(streaming.TypeStartEpisode, streaming.StartEpisodePayload{Episode: e})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeStartEpisode, err)
	}
	b.conn.remember(data)
	return b.conn.sendAndWait(data, streaming.TypeStartEpisode, b.ackTimeout)
}

// EndEpisode sends the summary and waits for the server's ack.
func (b *Backend) EndEpisode(s *core.EpisodeSummary) error {
	data, err := streaming.Marshal(streaming.TypeEndEpisode, streaming.EndEpisodePayload{Summary: s})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeEndEpisode, err)
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndEpisode, b.ackTimeout)
	b.conn.remember(nil)
	return err
}

func (b *Backend) RecordTick(t *core.TickRecord) error {
	data, err := streaming.Marshal(streaming.TypeTick, t)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeTick, err)
	}
	b.conn.send(data)
	return nil
}
