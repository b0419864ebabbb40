package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

const recommendationColumns = `r.id, r.query_id, r.query_title, r.title, r.product_name, r.product_image, r.reason, r.recommender_email, r.recommender_name, r.is_accepted, r.created`

// listRecommendations loads recommendations and their voters for one WHERE
// clause on the recommendations table (aliased r).
func (r *SQLiteRepo) listRecommendations(ctx context.Context, where string, arg any) ([]models.Recommendation, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+recommendationColumns+` FROM recommendations r WHERE `+where+` ORDER BY r.created DESC, r.id ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	out := []models.Recommendation{}
	index := map[string]int{}
	for rows.Next() {
		var (
			rec     models.Recommendation
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.QueryID, &rec.QueryTitle, &rec.Title, &rec.ProductName, &rec.ProductImage,
			&rec.Reason, &rec.RecommenderEmail, &rec.RecommenderName, &rec.IsAccepted, &created); err != nil {
			rows.Close()
			return nil, err
		}
		rec.CreatedAt = fromMillis(created)
		rec.VotedBy = []string{}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	votes, err := r.conn.QueryRows(ctx, `SELECT v.recommendation_id, v.voter_email FROM recommendation_votes v
		JOIN recommendations r ON r.id = v.recommendation_id
		WHERE `+where+` ORDER BY v.created ASC, v.rowid ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer votes.Close()
	for votes.Next() {
		var id, email string
		if err := votes.Scan(&id, &email); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			out[i].VotedBy = append(out[i].VotedBy, email)
		}
	}
	if err := votes.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

func (r *SQLiteRepo) ListRecommendations(ctx context.Context, queryID string) (recs []models.Recommendation, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "list_recommendations", start, err) }(time.Now())
	return r.listRecommendations(ctx, `r.query_id = ?`, queryID)
}

func (r *SQLiteRepo) ListByRecommender(ctx context.Context, email string) ([]models.Recommendation, error) {
	return r.listRecommendations(ctx, `r.recommender_email = ?`, email)
}

// CreateRecommendation inserts rec and bumps the query's recommendation count
// in the same transaction. Votes and acceptance always start empty.
func (r *SQLiteRepo) CreateRecommendation(ctx context.Context, rec *models.Recommendation) (out *models.Recommendation, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "create_recommendation", start, err) }(time.Now())
	if rec == nil {
		return nil, fmt.Errorf("recommendation is nil")
	}

	c := rec.Clone()
	c.ID = newID()
	c.VotedBy = []string{}
	c.HelpfulCount = 0
	c.IsAccepted = false
	if c.CreatedAt.IsZero() {
		c.CreatedAt = fromMillis(now())
	}

	err = r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		title, err := queryExists(ctx, tx, c.QueryID)
		if err != nil {
			return err
		}
		if c.QueryTitle == "" {
			c.QueryTitle = title
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO recommendations (id, query_id, query_title, title, product_name, product_image, reason, recommender_email, recommender_name, is_accepted, created)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			c.ID, c.QueryID, c.QueryTitle, c.Title, c.ProductName, c.ProductImage, c.Reason,
			c.RecommenderEmail, c.RecommenderName, toMillis(c.CreatedAt)); err != nil {
			return fmt.Errorf("insert recommendation: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE queries SET recommendation_count = recommendation_count + 1 WHERE id = ?`, c.QueryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// VoteHelpful records the vote once per voter; repeating it is a successful
// no-op. The returned count is the number of distinct voters.
func (r *SQLiteRepo) VoteHelpful(ctx context.Context, recommendationID, voterEmail string) (res *models.VoteResult, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "vote_helpful", start, err) }(time.Now())
	if voterEmail == "" {
		return &models.VoteResult{Success: false, Message: "voter email required"}, nil
	}

	var count int
	err = r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM recommendations WHERE id = ?`, recommendationID).Scan(&one); err != nil {
			return notFound(err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO recommendation_votes (recommendation_id, voter_email, created) VALUES (?, ?, ?)`,
			recommendationID, voterEmail, now()); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM recommendation_votes WHERE recommendation_id = ?`, recommendationID).Scan(&count)
	})
	if err != nil {
		return nil, err
	}
	return &models.VoteResult{Success: true, HelpfulCount: &count}, nil
}

// MarkBest accepts the recommendation and clears every sibling, then resolves
// the query. Siblings are cleared first so the one-accepted index holds.
func (r *SQLiteRepo) MarkBest(ctx context.Context, recommendationID, queryID string) (res *models.AcceptResult, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "mark_best", start, err) }(time.Now())

	err = r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		var owner string
		if err := tx.QueryRowContext(ctx, `SELECT query_id FROM recommendations WHERE id = ?`, recommendationID).Scan(&owner); err != nil {
			return notFound(err)
		}
		if owner != queryID {
			return fmt.Errorf("recommendation %s does not belong to query %s: %w", recommendationID, queryID, repository.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE recommendations SET is_accepted = 0 WHERE query_id = ? AND id <> ?`, queryID, recommendationID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE recommendations SET is_accepted = 1 WHERE id = ?`, recommendationID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE queries SET is_resolved = 1 WHERE id = ?`, queryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("recommendation accepted", "recommendation_id", recommendationID, "query_id", queryID)
	return &models.AcceptResult{Success: true}, nil
}

// DeleteRecommendation removes the recommendation with its votes and keeps the
// query counter in step.
func (r *SQLiteRepo) DeleteRecommendation(ctx context.Context, id string) error {
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		var queryID string
		if err := tx.QueryRowContext(ctx, `SELECT query_id FROM recommendations WHERE id = ?`, id).Scan(&queryID); err != nil {
			return notFound(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM recommendations WHERE id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE queries SET recommendation_count = MAX(recommendation_count - 1, 0) WHERE id = ?`, queryID)
		return err
	})
}
