package board

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/pkg/models"
)

// VoteHelpful records voter's helpful vote on recID. The vote is visible at
// once; the returned Pending settles when the store has answered, with the
// vote rolled back if the store call failed.
//
// Rejections happen before any store call: ErrUnauthorized without a voter,
// ErrUnknownRecommendation, and ErrAlreadyVoted when the voter is already in
// votedBy or has the same vote in flight.
func (b *Board) VoteHelpful(ctx context.Context, recID string, voter *models.User) (*Pending, error) {
	if voter == nil || voter.Email == "" {
		metrics.RecordAction(string(ActionVote), "rejected")
		return nil, ErrUnauthorized
	}
	email := voter.Email
	key := voteKey{recID: recID, email: email}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	i := b.indexOf(recID)
	if i < 0 {
		b.mu.Unlock()
		return nil, ErrUnknownRecommendation
	}
	if _, busy := b.inflight[key]; busy || b.recs[i].HasVoted(email) {
		b.mu.Unlock()
		metrics.RecordAction(string(ActionVote), "rejected")
		return nil, ErrAlreadyVoted
	}
	b.inflight[key] = struct{}{}
	b.recs[i].VotedBy = append(b.recs[i].VotedBy, email)
	b.recs[i].Normalize()
	b.rerank()
	b.mu.Unlock()

	p := newPending()
	task := func(context.Context) {
		cctx, cancel := b.reconcileContext(ctx)
		defer cancel()
		res, err := b.store.VoteHelpful(cctx, recID, email)
		b.finishVote(p, key, res, err)
	}
	if err := b.dispatch.Submit(task); err != nil {
		b.finishVote(p, key, nil, fmt.Errorf("dispatch vote: %w", err))
	}
	return p, nil
}

func (b *Board) finishVote(p *Pending, key voteKey, res *models.VoteResult, err error) {
	if err == nil && (res == nil || !res.Success) {
		msg := "vote rejected by store"
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		err = errors.New(msg)
	}

	b.mu.Lock()
	delete(b.inflight, key)

	if b.closed {
		b.mu.Unlock()
		metrics.RecordAction(string(ActionVote), OutcomeAbandoned.String())
		p.resolve(Result{Action: ActionVote, RecommendationID: key.recID, Outcome: OutcomeAbandoned})
		return
	}
	b.settled++

	if err != nil {
		if i := b.indexOf(key.recID); i >= 0 {
			b.recs[i].VotedBy = slices.DeleteFunc(b.recs[i].VotedBy, func(v string) bool { return v == key.email })
			b.recs[i].Normalize()
			b.rerank()
		}
		werr := fmt.Errorf("%w: %w", ErrNetworkFailure, err)
		b.notify(ActionVote, key.recID, werr)
		b.mu.Unlock()

		b.logger.Warn("helpful vote rolled back", "recommendation_id", key.recID, "err", err)
		metrics.RecordAction(string(ActionVote), OutcomeRolledBack.String())
		metrics.BoardRollbacksTotal.WithLabelValues(string(ActionVote)).Inc()
		p.resolve(Result{Action: ActionVote, RecommendationID: key.recID, Outcome: OutcomeRolledBack, Err: werr})
		return
	}

	// The count never overrides votedBy; a disagreement only marks the board
	// for a reload.
	if res.HelpfulCount != nil {
		if i := b.indexOf(key.recID); i >= 0 && len(b.recs[i].VotedBy) != *res.HelpfulCount {
			b.stale = true
		}
	}
	b.mu.Unlock()

	metrics.RecordAction(string(ActionVote), OutcomeSaved.String())
	p.resolve(Result{Action: ActionVote, RecommendationID: key.recID, Outcome: OutcomeSaved, ServerHelpfulCount: res.HelpfulCount})
}
