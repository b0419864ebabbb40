package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/internal/validation"
	"github.com/garnizeh/recboard/pkg/models"
)

// Submit persists a new recommendation by author and refreshes the board from
// the store. Nothing is inserted locally before the store accepts it, and the
// query's recommendation count is left to the store.
func (b *Board) Submit(ctx context.Context, fields models.RecommendationFields, author *models.User) (models.Recommendation, error) {
	if author == nil || author.Email == "" {
		metrics.RecordAction(string(ActionSubmit), "rejected")
		return models.Recommendation{}, ErrUnauthorized
	}

	fields.Title = strings.TrimSpace(fields.Title)
	fields.ProductName = strings.TrimSpace(fields.ProductName)
	fields.ProductImage = strings.TrimSpace(fields.ProductImage)
	fields.Reason = strings.TrimSpace(fields.Reason)
	if err := validation.Struct(fields); err != nil {
		metrics.RecordAction(string(ActionSubmit), "rejected")
		return models.Recommendation{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if b.requireImage {
		if err := validation.Var("productImage", fields.ProductImage, "required,url"); err != nil {
			metrics.RecordAction(string(ActionSubmit), "rejected")
			return models.Recommendation{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return models.Recommendation{}, ErrClosed
	}
	q := b.query.Clone()
	b.mu.Unlock()

	rec := &models.Recommendation{
		QueryID:          q.ID,
		QueryTitle:       q.Title,
		Title:            fields.Title,
		ProductName:      fields.ProductName,
		ProductImage:     fields.ProductImage,
		Reason:           fields.Reason,
		RecommenderEmail: author.Email,
		RecommenderName:  author.DisplayName,
		HelpfulCount:     0,
		VotedBy:          []string{},
		IsAccepted:       false,
		CreatedAt:        b.now().UTC(),
	}
	created, err := b.store.CreateRecommendation(ctx, rec)
	if err != nil {
		metrics.RecordAction(string(ActionSubmit), "failed")
		return models.Recommendation{}, fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	if created == nil {
		created = rec
	}
	out := created.Clone()
	out.Normalize()

	b.mu.Lock()
	seq := b.settled
	b.mu.Unlock()

	recs, lerr := b.store.ListRecommendations(ctx, q.ID)

	b.mu.Lock()
	if !b.closed {
		if lerr == nil && b.settled == seq {
			b.replaceRecs(ownRecs(q.ID, recs))
		} else {
			if b.indexOf(out.ID) < 0 {
				b.recs = append(b.recs, out.Clone())
				b.rerank()
			}
			// the list may predate an action that settled meanwhile
			b.stale = b.stale || lerr == nil
		}
	}
	b.mu.Unlock()

	if lerr != nil {
		b.logger.Warn("reload after submit failed; merged created recommendation", "query_id", q.ID, "err", lerr)
	}
	metrics.RecordAction(string(ActionSubmit), OutcomeSaved.String())
	return out, nil
}
