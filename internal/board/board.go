// Package board holds the working copy of one query's recommendations for one
// page-view and applies the user actions on it: submit, helpful vote and mark
// best. Votes and mark-best are optimistic: the local change is visible
// immediately and reverted if the store call fails.
package board

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/garnizeh/recboard/internal/jobs"
	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReconcileTimeout = 15 * time.Second
	maxNotices              = 32
	maxReloadAttempts       = 3
)

// Dispatcher runs reconciliation tasks in the background.
// *jobs.WorkerPool satisfies it.
type Dispatcher interface {
	Submit(t jobs.Task) error
}

type goDispatcher struct{}

func (goDispatcher) Submit(t jobs.Task) error {
	go t(context.Background())
	return nil
}

// Notice is a recoverable error reported by a background reconciliation.
type Notice struct {
	Action           Action    `json:"action"`
	RecommendationID string    `json:"recommendationId"`
	Message          string    `json:"message"`
	At               time.Time `json:"at"`
}

// Snapshot is a consistent copy of the board state.
type Snapshot struct {
	Query           models.Query            `json:"query"`
	Recommendations []models.Recommendation `json:"recommendations"`
	Stale           bool                    `json:"stale"`
}

type voteKey struct {
	recID string
	email string
}

// Board is safe for concurrent use. Local mutations are serialised by mu and
// never wait on the store.
type Board struct {
	store            repository.Store
	dispatch         Dispatcher
	logger           *slog.Logger
	now              func() time.Time
	reconcileTimeout time.Duration
	requireImage     bool

	mu            sync.Mutex
	query         models.Query
	recs          []models.Recommendation // always ranked
	inflight      map[voteKey]struct{}
	acceptGen     uint64
	pendingAccept string
	// confirmedAccept is the recommendation the store last reported as
	// accepted; failed mark-best calls roll back to it.
	confirmedAccept string
	// settled counts votes and mark-best calls that finished; a fetch that
	// spans a change of it may predate what the store now holds.
	settled uint64
	stale   bool
	closed        bool
	notices       []Notice
}

// Option configures a Board.
type Option func(*Board)

// WithDispatcher runs reconciliations on d instead of bare goroutines.
func WithDispatcher(d Dispatcher) Option {
	return func(b *Board) {
		if d != nil {
			b.dispatch = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Board) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides time.Now for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// WithReconcileTimeout bounds every background store call.
func WithReconcileTimeout(d time.Duration) Option {
	return func(b *Board) {
		if d > 0 {
			b.reconcileTimeout = d
		}
	}
}

// WithRequireImage makes productImage mandatory on submission.
func WithRequireImage(v bool) Option {
	return func(b *Board) { b.requireImage = v }
}

// Load fetches the query and its recommendations and returns a ranked board.
// Either read failing fails the whole load; no partial board is returned.
func Load(ctx context.Context, store repository.Store, queryID string, opts ...Option) (*Board, error) {
	b := &Board{
		store:            store,
		dispatch:         goDispatcher{},
		logger:           slog.Default(),
		now:              time.Now,
		reconcileTimeout: defaultReconcileTimeout,
		inflight:         map[voteKey]struct{}{},
	}
	for _, o := range opts {
		o(b)
	}

	q, recs, err := fetch(ctx, store, queryID)
	if err != nil {
		metrics.RecordAction(string(ActionLoad), "failed")
		return nil, err
	}
	b.query = *q
	b.recs = Rank(recs)
	b.confirmedAccept = acceptedID(b.recs)
	metrics.RecordAction(string(ActionLoad), "saved")
	return b, nil
}

func fetch(ctx context.Context, store repository.Store, queryID string) (*models.Query, []models.Recommendation, error) {
	queryID = strings.TrimSpace(queryID)
	if queryID == "" {
		return nil, nil, storeError(repository.ErrNotFound)
	}

	var (
		q    *models.Query
		recs []models.Recommendation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		q, err = store.GetQuery(gctx, queryID)
		return err
	})
	g.Go(func() error {
		var err error
		recs, err = store.ListRecommendations(gctx, queryID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, storeError(err)
	}
	if q == nil {
		return nil, nil, storeError(repository.ErrNotFound)
	}

	cq := q.Clone()
	return &cq, ownRecs(queryID, recs), nil
}

// ownRecs copies the recommendations that belong to queryID, dropping any a
// backend returned for other queries.
func ownRecs(queryID string, recs []models.Recommendation) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(recs))
	for _, r := range recs {
		if r.QueryID != "" && r.QueryID != queryID {
			continue
		}
		r = r.Clone()
		r.QueryID = queryID
		r.Normalize()
		out = append(out, r)
	}
	return out
}

func acceptedID(recs []models.Recommendation) string {
	for _, r := range recs {
		if r.IsAccepted {
			return r.ID
		}
	}
	return ""
}

// Query returns a copy of the query.
func (b *Board) Query() models.Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query.Clone()
}

// Recommendations returns a copy of the ranked recommendations.
func (b *Board) Recommendations() []models.Recommendation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyRecs()
}

// Snapshot returns query and recommendations taken under one lock.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Query: b.query.Clone(), Recommendations: b.copyRecs(), Stale: b.stale}
}

// Stale reports whether the store disagreed with the local state and a
// Reload is advisable.
func (b *Board) Stale() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stale
}

// Notices drains the recoverable errors reported by background
// reconciliations since the last call.
func (b *Board) Notices() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	return out
}

// Reload re-reads query and recommendations from the store. Votes and
// mark-best still in flight stay applied on top of the fresh data. Data read
// while another action settled is discarded and fetched again; when that keeps
// happening the current state is kept and the board stays stale.
func (b *Board) Reload(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return ErrClosed
		}
		id := b.query.ID
		seq := b.settled
		b.mu.Unlock()

		q, recs, err := fetch(ctx, b.store, id)
		if err != nil {
			return err
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return ErrClosed
		}
		if b.settled != seq {
			if attempt < maxReloadAttempts {
				b.mu.Unlock()
				continue
			}
			b.stale = true
			b.mu.Unlock()
			b.logger.Debug("reload raced with settling actions; keeping current state", "query_id", id)
			return nil
		}
		b.query = *q
		b.replaceRecs(recs)
		b.stale = false
		b.mu.Unlock()
		return nil
	}
}

// Close abandons the board. Reconciliations that finish later resolve as
// OutcomeAbandoned and leave the state alone.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Closed reports whether Close was called.
func (b *Board) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// --- helpers below expect b.mu held ---

func (b *Board) copyRecs() []models.Recommendation {
	out := make([]models.Recommendation, len(b.recs))
	for i, r := range b.recs {
		out[i] = r.Clone()
	}
	return out
}

func (b *Board) indexOf(id string) int {
	for i := range b.recs {
		if b.recs[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) rerank() {
	b.recs = Rank(b.recs)
}

// replaceRecs installs fresh store data and re-applies optimistic changes that
// are still in flight.
func (b *Board) replaceRecs(recs []models.Recommendation) {
	b.recs = recs
	b.confirmedAccept = acceptedID(recs)
	for k := range b.inflight {
		if i := b.indexOf(k.recID); i >= 0 && !b.recs[i].HasVoted(k.email) {
			b.recs[i].VotedBy = append(b.recs[i].VotedBy, k.email)
			b.recs[i].Normalize()
		}
	}
	if b.pendingAccept != "" && b.indexOf(b.pendingAccept) >= 0 {
		for i := range b.recs {
			b.recs[i].IsAccepted = b.recs[i].ID == b.pendingAccept
		}
	}
	b.rerank()
}

// applyConfirmedAccept resets the accepted flags to what the store last
// confirmed.
func (b *Board) applyConfirmedAccept() {
	for i := range b.recs {
		b.recs[i].IsAccepted = b.recs[i].ID == b.confirmedAccept
	}
	b.rerank()
}

func (b *Board) notify(action Action, recID string, err error) {
	b.notices = append(b.notices, Notice{Action: action, RecommendationID: recID, Message: err.Error(), At: b.now().UTC()})
	if len(b.notices) > maxNotices {
		b.notices = b.notices[len(b.notices)-maxNotices:]
	}
}

// reconcileContext keeps the caller's values but not its cancellation: the
// store call must finish even when the request that triggered it is gone.
func (b *Board) reconcileContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), b.reconcileTimeout)
}
