package mock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

var _ repository.Backend = (*Store)(nil)

// Store is an in-memory, scriptable implementation of repository.Backend used
// by tests. Error fields make the matching call fail; Gate, when set, blocks
// VoteHelpful and MarkBest until it is closed or the context ends.
type Store struct {
	mu sync.Mutex

	Queries map[string]*models.Query
	Recs    map[string]*models.Recommendation

	GetQueryErr  error
	ListErr      error
	CreateErr    error
	VoteErr      error
	MarkBestErr  error
	VoteRejected string // non-empty makes VoteHelpful answer success=false with this message
	// VoteCount, when set, is reported as the authoritative helpful count.
	VoteCount *int
	Gate      chan struct{}

	calls map[string]int
	seq   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Queries: map[string]*models.Query{},
		Recs:    map[string]*models.Recommendation{},
		calls:   map[string]int{},
	}
}

// AddQuery seeds a query.
func (s *Store) AddQuery(q models.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := q.Clone()
	s.Queries[q.ID] = &c
}

// AddRecommendation seeds a recommendation.
func (s *Store) AddRecommendation(r models.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := r.Clone()
	c.Normalize()
	s.Recs[r.ID] = &c
}

// Calls returns how many times the named method ran.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.calls {
		n += v
	}
	return n
}

// Recommendation returns a copy of the stored recommendation.
func (s *Store) Recommendation(id string) (models.Recommendation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Recs[id]
	if !ok {
		return models.Recommendation{}, false
	}
	return r.Clone(), true
}

// SetErr replaces an error field under the lock.
func (s *Store) SetErr(field *error, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*field = err
}

func (s *Store) record(method string) {
	s.mu.Lock()
	s.calls[method]++
	s.mu.Unlock()
}

func (s *Store) wait(ctx context.Context) error {
	s.mu.Lock()
	gate := s.Gate
	s.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) GetQuery(ctx context.Context, id string) (*models.Query, error) {
	s.record("GetQuery")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetQueryErr != nil {
		return nil, s.GetQueryErr
	}
	q, ok := s.Queries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := q.Clone()
	return &c, nil
}

func (s *Store) ListRecommendations(ctx context.Context, queryID string) ([]models.Recommendation, error) {
	s.record("ListRecommendations")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := []models.Recommendation{}
	for _, r := range s.Recs {
		if r.QueryID == queryID {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.Recommendation) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) CreateRecommendation(ctx context.Context, rec *models.Recommendation) (*models.Recommendation, error) {
	s.record("CreateRecommendation")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	s.seq++
	c := rec.Clone()
	c.ID = fmt.Sprintf("new-%d", s.seq)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Normalize()
	s.Recs[c.ID] = &c
	if q, ok := s.Queries[c.QueryID]; ok {
		q.RecommendationCount++
	}
	out := c.Clone()
	return &out, nil
}

func (s *Store) VoteHelpful(ctx context.Context, recommendationID, voterEmail string) (*models.VoteResult, error) {
	s.record("VoteHelpful")
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.VoteErr != nil {
		return nil, s.VoteErr
	}
	if s.VoteRejected != "" {
		return &models.VoteResult{Success: false, Message: s.VoteRejected}, nil
	}
	r, ok := s.Recs[recommendationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !r.HasVoted(voterEmail) {
		r.VotedBy = append(r.VotedBy, voterEmail)
		r.Normalize()
	}
	count := r.HelpfulCount
	if s.VoteCount != nil {
		count = *s.VoteCount
	}
	return &models.VoteResult{Success: true, HelpfulCount: &count}, nil
}

func (s *Store) MarkBest(ctx context.Context, recommendationID, queryID string) (*models.AcceptResult, error) {
	s.record("MarkBest")
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkBestErr != nil {
		return nil, s.MarkBestErr
	}
	if _, ok := s.Recs[recommendationID]; !ok {
		return nil, repository.ErrNotFound
	}
	for _, r := range s.Recs {
		if r.QueryID == queryID {
			r.IsAccepted = r.ID == recommendationID
		}
	}
	if q, ok := s.Queries[queryID]; ok {
		q.IsResolved = true
	}
	return &models.AcceptResult{Success: true}, nil
}

func (s *Store) CreateQuery(ctx context.Context, q *models.Query) (*models.Query, error) {
	s.record("CreateQuery")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c := q.Clone()
	c.ID = fmt.Sprintf("q-%d", s.seq)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.Queries[c.ID] = &c
	out := c.Clone()
	return &out, nil
}

func (s *Store) UpdateQuery(ctx context.Context, q *models.Query) error {
	s.record("UpdateQuery")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Queries[q.ID]; !ok {
		return repository.ErrNotFound
	}
	c := q.Clone()
	s.Queries[q.ID] = &c
	return nil
}

func (s *Store) DeleteQuery(ctx context.Context, id string) error {
	s.record("DeleteQuery")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Queries[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.Queries, id)
	return nil
}

func (s *Store) ListQueries(ctx context.Context, filter models.QueryFilter) ([]models.Query, error) {
	s.record("ListQueries")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Query{}
	for _, q := range s.Queries {
		if filter.OwnerEmail != "" && q.OwnerEmail != filter.OwnerEmail {
			continue
		}
		out = append(out, q.Clone())
	}
	slices.SortFunc(out, func(a, b models.Query) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ListByRecommender(ctx context.Context, email string) ([]models.Recommendation, error) {
	s.record("ListByRecommender")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Recommendation{}
	for _, r := range s.Recs {
		if r.RecommenderEmail == email {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.Recommendation) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) DeleteRecommendation(ctx context.Context, id string) error {
	s.record("DeleteRecommendation")
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Recs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if q, ok := s.Queries[r.QueryID]; ok && q.RecommendationCount > 0 {
		q.RecommendationCount--
	}
	delete(s.Recs, id)
	return nil
}
