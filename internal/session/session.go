// Package session keeps the boards opened by page-views, keyed by an opaque id,
// and evicts the ones nobody touched for a while.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/recboard/internal/board"
	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/pkg/repository"
)

// ErrNotFound is returned for unknown or evicted board ids.
var ErrNotFound = errors.New("board session not found")

const defaultIdleTTL = 30 * time.Minute

type entry struct {
	board    *board.Board
	lastSeen time.Time
}

// Registry is safe for concurrent use.
type Registry struct {
	store   repository.Store
	opts    []board.Option
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	boards  map[string]*entry
	stopped bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Config tunes a Registry.
type Config struct {
	IdleTTL time.Duration
	// Sweep is the janitor period; defaults to IdleTTL/4.
	Sweep  time.Duration
	Logger *slog.Logger
	// BoardOptions are applied to every board the registry loads.
	BoardOptions []board.Option
}

// New starts a registry with its janitor goroutine. Call Stop to release it.
func New(store repository.Store, cfg Config) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.Sweep <= 0 {
		cfg.Sweep = cfg.IdleTTL / 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Registry{
		store:   store,
		opts:    cfg.BoardOptions,
		idleTTL: cfg.IdleTTL,
		logger:  cfg.Logger,
		now:     time.Now,
		boards:  map[string]*entry{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.janitor(cfg.Sweep)
	return r
}

// Open loads a fresh board for queryID and registers it under a new id.
func (r *Registry) Open(ctx context.Context, queryID string) (string, *board.Board, error) {
	b, err := board.Load(ctx, r.store, queryID, r.opts...)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		b.Close()
		return "", nil, board.ErrClosed
	}
	r.boards[id] = &entry{board: b, lastSeen: r.now()}
	r.mu.Unlock()

	metrics.OpenBoards.Inc()
	r.logger.Debug("board opened", "board_id", id, "query_id", queryID)
	return id, b, nil
}

// Get returns the board and refreshes its idle timer.
func (r *Registry) Get(id string) (*board.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.boards[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastSeen = r.now()
	return e.board, nil
}

// Close abandons the board; late reconciliations are ignored.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.boards[id]
	if ok {
		delete(r.boards, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	e.board.Close()
	metrics.OpenBoards.Dec()
	return nil
}

// Len returns the number of open boards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}

// Sweep closes boards idle for longer than the TTL and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*board.Board
	for id, e := range r.boards {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.board)
			delete(r.boards, id)
		}
	}
	r.mu.Unlock()

	for _, b := range expired {
		b.Close()
		metrics.OpenBoards.Dec()
	}
	if len(expired) > 0 {
		r.logger.Info("evicted idle boards", "count", len(expired))
	}
	return len(expired)
}

// Stop ends the janitor and closes every board. Safe to call more than once.
func (r *Registry) Stop() {
	r.once.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		r.stopped = true
		boards := r.boards
		r.boards = map[string]*entry{}
		r.mu.Unlock()

		for _, e := range boards {
			e.board.Close()
			metrics.OpenBoards.Dec()
		}
	})
}

func (r *Registry) janitor(every time.Duration) {
	defer close(r.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			r.Sweep()
		}
	}
}
