package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/pkg/models"
)

// MarkBest accepts recID as the best solution of the query. Only the query
// owner may do it (ErrForbidden otherwise, with no store call). The target is
// accepted and every sibling reset at once; on store failure the flags return
// to the last state the store confirmed. Marking the already accepted recommendation is a
// no-op that settles immediately.
func (b *Board) MarkBest(ctx context.Context, recID string, requester *models.User) (*Pending, error) {
	if requester == nil || requester.Email == "" {
		metrics.RecordAction(string(ActionMarkBest), "rejected")
		return nil, ErrUnauthorized
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if requester.Email != b.query.OwnerEmail {
		b.mu.Unlock()
		metrics.RecordAction(string(ActionMarkBest), "rejected")
		return nil, ErrForbidden
	}
	i := b.indexOf(recID)
	if i < 0 {
		b.mu.Unlock()
		return nil, ErrUnknownRecommendation
	}
	if b.recs[i].IsAccepted {
		b.mu.Unlock()
		return settled(Result{Action: ActionMarkBest, RecommendationID: recID, Outcome: OutcomeSaved}), nil
	}

	for j := range b.recs {
		b.recs[j].IsAccepted = b.recs[j].ID == recID
	}
	b.acceptGen++
	gen := b.acceptGen
	b.pendingAccept = recID
	queryID := b.query.ID
	b.rerank()
	b.mu.Unlock()

	p := newPending()
	task := func(context.Context) {
		cctx, cancel := b.reconcileContext(ctx)
		defer cancel()
		res, err := b.store.MarkBest(cctx, recID, queryID)
		b.finishMarkBest(p, recID, gen, res, err)
	}
	if err := b.dispatch.Submit(task); err != nil {
		b.finishMarkBest(p, recID, gen, nil, fmt.Errorf("dispatch mark best: %w", err))
	}
	return p, nil
}

func (b *Board) finishMarkBest(p *Pending, recID string, gen uint64, res *models.AcceptResult, err error) {
	if err == nil && (res == nil || !res.Success) {
		msg := "mark best rejected by store"
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		err = errors.New(msg)
	}

	b.mu.Lock()
	latest := gen == b.acceptGen
	if latest {
		b.pendingAccept = ""
	}

	if b.closed {
		b.mu.Unlock()
		metrics.RecordAction(string(ActionMarkBest), OutcomeAbandoned.String())
		p.resolve(Result{Action: ActionMarkBest, RecommendationID: recID, Outcome: OutcomeAbandoned})
		return
	}

	b.settled++

	if err != nil {
		// a newer mark-best still in flight owns the flags
		if b.pendingAccept == "" {
			b.applyConfirmedAccept()
		}
		werr := fmt.Errorf("%w: %w", ErrNetworkFailure, err)
		b.notify(ActionMarkBest, recID, werr)
		b.mu.Unlock()

		b.logger.Warn("mark best rolled back", "recommendation_id", recID, "err", err)
		metrics.RecordAction(string(ActionMarkBest), OutcomeRolledBack.String())
		metrics.BoardRollbacksTotal.WithLabelValues(string(ActionMarkBest)).Inc()
		p.resolve(Result{Action: ActionMarkBest, RecommendationID: recID, Outcome: OutcomeRolledBack, Err: werr})
		return
	}

	b.confirmedAccept = recID
	b.query.IsResolved = true
	if !latest && b.pendingAccept == "" {
		// the newer call already settled; which one the store applied last is
		// unknown
		b.applyConfirmedAccept()
		b.stale = true
	}
	b.mu.Unlock()

	metrics.RecordAction(string(ActionMarkBest), OutcomeSaved.String())
	p.resolve(Result{Action: ActionMarkBest, RecommendationID: recID, Outcome: OutcomeSaved})
}
