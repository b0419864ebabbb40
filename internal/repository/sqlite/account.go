package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

func (r *SQLiteRepo) CreateAccount(ctx context.Context, a *models.Account) (string, error) {
	if a == nil {
		return "", fmt.Errorf("account is nil")
	}
	id := newID()
	email := strings.TrimSpace(a.Email)
	_, err := r.conn.Exec(ctx, `INSERT INTO accounts (id, email, display_name, photo_url, password_hash, created) VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, a.DisplayName, a.PhotoURL, a.PasswordHash, toMillis(a.Created))
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("account %s: %w", email, repository.ErrConflict)
		}
		return "", err
	}
	return id, nil
}

func (r *SQLiteRepo) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, email, display_name, photo_url, password_hash, created FROM accounts WHERE email = ?`, strings.TrimSpace(email))
	var (
		a       models.Account
		created int64
	)
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PhotoURL, &a.PasswordHash, &created); err != nil {
		return nil, notFound(err)
	}
	a.Created = fromMillis(created)
	return &a, nil
}
