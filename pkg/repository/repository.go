package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/recboard/pkg/models"
)

// Repository interfaces for the collaborators of the page layer. These are the
// public contracts consumers depend on; implementations live under internal/
// (sqlite, firestore) and pkg/backend (remote REST backend).

// ErrNotFound is returned by every implementation when the addressed record
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique key (e.g. an account email) is taken.
var ErrConflict = errors.New("already exists")

// Store is the system of record consumed by the recommendation board.
type Store interface {
	GetQuery(ctx context.Context, id string) (*models.Query, error)
	ListRecommendations(ctx context.Context, queryID string) ([]models.Recommendation, error)
	// CreateRecommendation persists rec; the store assigns ID and CreatedAt.
	CreateRecommendation(ctx context.Context, rec *models.Recommendation) (*models.Recommendation, error)
	// VoteHelpful must be idempotent by voter.
	VoteHelpful(ctx context.Context, recommendationID, voterEmail string) (*models.VoteResult, error)
	MarkBest(ctx context.Context, recommendationID, queryID string) (*models.AcceptResult, error)
}

type QueryRepo interface {
	CreateQuery(ctx context.Context, q *models.Query) (*models.Query, error)
	UpdateQuery(ctx context.Context, q *models.Query) error
	DeleteQuery(ctx context.Context, id string) error
	ListQueries(ctx context.Context, filter models.QueryFilter) ([]models.Query, error)
}

type RecommendationRepo interface {
	ListByRecommender(ctx context.Context, email string) ([]models.Recommendation, error)
	DeleteRecommendation(ctx context.Context, id string) error
}

// Backend groups everything the HTTP layer needs from a store driver.
type Backend interface {
	Store
	QueryRepo
	RecommendationRepo
}

// AccountRepo stores local accounts for the local identity mode.
type AccountRepo interface {
	CreateAccount(ctx context.Context, a *models.Account) (string, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}
