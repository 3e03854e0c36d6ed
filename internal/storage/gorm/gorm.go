// Package gormstorage implements the storage.Backend interface on top of GORM.
// Ticks are queued and written in batches by a background writer goroutine;
// episode rows are written synchronously so their IDs are known.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/urbandriving/engine/internal/database"
	"github.com/urbandriving/engine/internal/model"
	"github.com/urbandriving/engine/internal/model/convert"
	"github.com/urbandriving/engine/internal/queue"
	"github.com/urbandriving/engine/pkg/core"
)

var ErrNoEpisode = errors.New("no episode started")

const defaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB may be nil, in which case records are only queued.
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Ticks        *queue.Queue[model.Tick]
	ObjectStates *queue.Queue[model.ObjectState]
	Collisions   *queue.Queue[model.Collision]
}

func newQueues() *queues {
	return &queues{
		Ticks:        queue.New[model.Tick](),
		ObjectStates: queue.New[model.ObjectState](),
		Collisions:   queue.New[model.Collision](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	log       *slog.Logger
	queues    *queues
	episodeID atomic.Uint64
	stopChan  chan struct{}
	done      chan struct{}

	// mu serializes DB access; SQLite shared-cache databases fail rather than
	// wait on concurrent writers.
	mu sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps: deps,
		log:  log,
	}
}

// DB returns the underlying connection, or nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// WithDB runs fn with exclusive use of the connection.
func (b *Backend) WithDB(fn func(db *gorm.DB) error) error {
	if b.deps.DB == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.deps.DB)
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		close(b.done)
		return nil
	}

	b.log.Info("Migrating schema", "dialect", b.deps.DB.Dialector.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		close(b.done)
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	go b.writer()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done
	return b.flush()
}

// StartEpisode inserts the episode with its statics and objects.
func (b *Backend) StartEpisode(e *core.Episode) error {
	if b.deps.DB == nil {
		b.episodeID.Store(uint64(e.ID))
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ticks of a previous episode go out before the new ID is used.
	if err := b.flushLocked(); err != nil {
		return err
	}

	ep := convert.CoreToEpisode(*e)
	if err := b.deps.DB.Create(&ep).Error; err != nil {
		return fmt.Errorf("failed to insert new episode: %w", err)
	}
	b.episodeID.Store(uint64(ep.ID))
	b.log.Debug("Episode row created", "episode", e.Name, "rowId", ep.ID)
	return nil
}

// RecordTick converts and queues a tick.
func (b *Backend) RecordTick(t *core.TickRecord) error {
	id := uint(b.episodeID.Load())
	if id == 0 {
		return ErrNoEpisode
	}
	tick, states, cols := convert.CoreToTick(*t, id, time.Now())
	b.queues.Ticks.Push(tick)
	b.queues.ObjectStates.Push(states...)
	b.queues.Collisions.Push(cols...)
	return nil
}

// EndEpisode writes the queued ticks and stores the summary on the episode row.
func (b *Backend) EndEpisode(s *core.EpisodeSummary) error {
	id := uint(b.episodeID.Swap(0))
	if id == 0 {
		return ErrNoEpisode
	}
	if b.deps.DB == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.flushLocked(); err != nil {
		return err
	}
	err := b.deps.DB.Model(&model.Episode{}).Where("id = ?", id).Updates(convert.SummaryUpdates(*s)).Error
	if err != nil {
		return fmt.Errorf("failed to update episode summary: %w", err)
	}
	return nil
}

// writeQueue writes all items from a queue to the database in a transaction.
// Items go back to the front of the queue on failure.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	if q.Empty() {
		return nil
	}

	tx := db.Begin()
	items := q.Drain()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("DB write failed", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items)
		return fmt.Errorf("writing %s: %w", name, err)
	}

	return tx.Commit().Error
}

// flush drains every queue into the DB.
func (b *Backend) flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Backend) flushLocked() error {
	pending := b.queues.Ticks.Len()
	if pending == 0 && b.queues.ObjectStates.Empty() && b.queues.Collisions.Empty() {
		return nil
	}

	start := time.Now()
	errs := []error{
		writeQueue(b.deps.DB, b.queues.Ticks, "ticks", b.log),
		writeQueue(b.deps.DB, b.queues.ObjectStates, "object states", b.log),
		writeQueue(b.deps.DB, b.queues.Collisions, "collisions", b.log),
	}
	b.log.Debug("Flushed write queues", "ticks", pending, "duration", time.Since(start))
	return errors.Join(errs...)
}

// writer periodically drains queues into the DB until Close.
func (b *Backend) writer() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.flush()
		}
	}
}
