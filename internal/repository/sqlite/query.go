package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

const queryColumns = `id, title, product_name, product_brand, product_image, reason, owner_email, owner_name, category, tags, recommendation_count, is_resolved, created`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(s rowScanner) (*models.Query, error) {
	var (
		q       models.Query
		tags    string
		created int64
	)
	if err := s.Scan(&q.ID, &q.Title, &q.ProductName, &q.ProductBrand, &q.ProductImage, &q.Reason,
		&q.OwnerEmail, &q.OwnerName, &q.Category, &tags, &q.RecommendationCount, &q.IsResolved, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil || q.Tags == nil {
		q.Tags = []string{}
	}
	q.CreatedAt = fromMillis(created)
	return &q, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func (r *SQLiteRepo) GetQuery(ctx context.Context, id string) (q *models.Query, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "get_query", start, err) }(time.Now())

	q, err = scanQuery(r.conn.QueryRow(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

func (r *SQLiteRepo) CreateQuery(ctx context.Context, q *models.Query) (*models.Query, error) {
	if q == nil {
		return nil, fmt.Errorf("query is nil")
	}
	out := q.Clone()
	out.ID = newID()
	out.RecommendationCount = 0
	out.IsResolved = false
	if out.CreatedAt.IsZero() {
		out.CreatedAt = fromMillis(now())
	}

	_, err := r.conn.Exec(ctx, `INSERT INTO queries (`+queryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		out.ID, out.Title, out.ProductName, out.ProductBrand, out.ProductImage, out.Reason,
		out.OwnerEmail, out.OwnerName, out.Category, encodeTags(out.Tags), toMillis(out.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert query: %w", err)
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return &out, nil
}

// UpdateQuery rewrites the editable fields. Owner, counters, resolution and
// creation time belong to the store and are left alone.
func (r *SQLiteRepo) UpdateQuery(ctx context.Context, q *models.Query) error {
	if q == nil {
		return fmt.Errorf("query is nil")
	}
	res, err := r.conn.Exec(ctx, `UPDATE queries SET title = ?, product_name = ?, product_brand = ?, product_image = ?, reason = ?, category = ?, tags = ? WHERE id = ?`,
		q.Title, q.ProductName, q.ProductBrand, q.ProductImage, q.Reason, q.Category, encodeTags(q.Tags), q.ID)
	if err != nil {
		return fmt.Errorf("update query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	// keep the denormalised title on recommendations in step
	_, err = r.conn.Exec(ctx, `UPDATE recommendations SET query_title = ? WHERE query_id = ?`, q.Title, q.ID)
	return err
}

// DeleteQuery removes the query with its recommendations and votes.
func (r *SQLiteRepo) DeleteQuery(ctx context.Context, id string) error {
	res, err := r.conn.Exec(ctx, `DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) ListQueries(ctx context.Context, filter models.QueryFilter) ([]models.Query, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerEmail != "" {
		where = append(where, "owner_email = ?")
		args = append(args, filter.OwnerEmail)
	}
	stmt := `SELECT ` + queryColumns + ` FROM queries`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY created DESC, id ASC`
	if filter.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.conn.QueryRows(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	out := []models.Query{}
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func queryExists(ctx context.Context, tx *sql.Tx, id string) (title string, err error) {
	err = tx.QueryRowContext(ctx, `SELECT title FROM queries WHERE id = ?`, id).Scan(&title)
	return title, notFound(err)
}
