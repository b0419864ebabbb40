package board_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/garnizeh/recboard/internal/board"
	"github.com/garnizeh/recboard/internal/jobs"
	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	alice = &models.User{Email: "alice@x.com", DisplayName: "Alice"}
	bob   = &models.User{Email: "bob@x.com", DisplayName: "Bob"}
	carol = &models.User{Email: "carol@x.com", DisplayName: "Carol"}
)

// seed builds the store used by most tests: query q1 owned by alice with
// r1 (2 votes) and r2 (5 votes).
func seed(t *testing.T) *mock.Store {
	t.Helper()
	s := mock.NewStore()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.AddQuery(models.Query{ID: "q1", Title: "Quiet keyboard", OwnerEmail: alice.Email, RecommendationCount: 2, CreatedAt: t0})
	s.AddRecommendation(models.Recommendation{
		ID: "r1", QueryID: "q1", Title: "Keychron", VotedBy: []string{"v1@x.com", "v2@x.com"}, CreatedAt: t0.Add(time.Minute),
	})
	s.AddRecommendation(models.Recommendation{
		ID: "r2", QueryID: "q1", Title: "Logitech", VotedBy: []string{"v1@x.com", "v2@x.com", "v3@x.com", "v4@x.com", "v5@x.com"}, CreatedAt: t0.Add(2 * time.Minute),
	})
	return s
}

func load(t *testing.T, s *mock.Store, opts ...board.Option) *board.Board {
	t.Helper()
	b, err := board.Load(context.Background(), s, "q1", opts...)
	require.NoError(t, err)
	return b
}

func wait(t *testing.T, p *board.Pending) board.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := p.Wait(ctx)
	require.NoError(t, err)
	return res
}

func find(t *testing.T, b *board.Board, id string) models.Recommendation {
	t.Helper()
	for _, r := range b.Recommendations() {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("recommendation %s not on board", id)
	return models.Recommendation{}
}

func TestLoad(t *testing.T) {
	s := seed(t)
	b := load(t, s)

	assert.Equal(t, "q1", b.Query().ID)
	assert.Equal(t, []string{"r2", "r1"}, ids(b.Recommendations()))
	assert.Equal(t, 1, s.Calls("GetQuery"))
	assert.Equal(t, 1, s.Calls("ListRecommendations"))
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name    string
		queryID string
		setup   func(s *mock.Store)
		want    error
	}{
		{name: "unknown query", queryID: "missing", want: board.ErrNotFound},
		{name: "empty id", queryID: "  ", want: board.ErrNotFound},
		{name: "query read fails", queryID: "q1", setup: func(s *mock.Store) { s.GetQueryErr = errors.New("boom") }, want: board.ErrNetworkFailure},
		{name: "list fails", queryID: "q1", setup: func(s *mock.Store) { s.ListErr = errors.New("boom") }, want: board.ErrNetworkFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seed(t)
			if tt.setup != nil {
				tt.setup(s)
			}
			b, err := board.Load(context.Background(), s, tt.queryID)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_DropsForeignRecommendations(t *testing.T) {
	s := seed(t)
	s.AddRecommendation(models.Recommendation{ID: "other", QueryID: "q2"})
	b := load(t, s)
	assert.Len(t, b.Recommendations(), 2)
}

func TestVoteHelpful(t *testing.T) {
	s := seed(t)
	b := load(t, s)

	p, err := b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)

	r1 := find(t, b, "r1")
	assert.Equal(t, 3, r1.HelpfulCount)
	assert.Contains(t, r1.VotedBy, carol.Email)

	res := wait(t, p)
	assert.Equal(t, board.OutcomeSaved, res.Outcome)
	assert.NoError(t, res.Err)
	require.NotNil(t, res.ServerHelpfulCount)
	assert.Equal(t, 3, *res.ServerHelpfulCount)
	assert.False(t, b.Stale())

	stored, _ := s.Recommendation("r1")
	assert.Equal(t, 3, stored.HelpfulCount)
}

func TestVoteHelpful_Idempotent(t *testing.T) {
	s := seed(t)
	b := load(t, s)

	p, err := b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)
	wait(t, p)

	_, err = b.VoteHelpful(context.Background(), "r1", carol)
	assert.ErrorIs(t, err, board.ErrAlreadyVoted)

	r1 := find(t, b, "r1")
	assert.Equal(t, 3, r1.HelpfulCount)
	assert.Equal(t, 1, s.Calls("VoteHelpful"))
}

func TestVoteHelpful_DuplicateWhileInFlight(t *testing.T) {
	s := seed(t)
	s.Gate = make(chan struct{})
	b := load(t, s)

	p, err := b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)

	_, err = b.VoteHelpful(context.Background(), "r1", carol)
	assert.ErrorIs(t, err, board.ErrAlreadyVoted)

	close(s.Gate)
	res := wait(t, p)
	assert.Equal(t, board.OutcomeSaved, res.Outcome)
	assert.Equal(t, 1, s.Calls("VoteHelpful"))
}

func TestVoteHelpful_RollbackRestoresExactState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *mock.Store)
	}{
		{name: "store error", setup: func(s *mock.Store) { s.VoteErr = errors.New("timeout") }},
		{name: "store says no", setup: func(s *mock.Store) { s.VoteRejected = "rate limited" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seed(t)
			tt.setup(s)
			b := load(t, s)
			before := b.Recommendations()

			p, err := b.VoteHelpful(context.Background(), "r1", carol)
			require.NoError(t, err)
			res := wait(t, p)

			assert.Equal(t, board.OutcomeRolledBack, res.Outcome)
			assert.ErrorIs(t, res.Err, board.ErrNetworkFailure)
			assert.Equal(t, before, b.Recommendations())

			notices := b.Notices()
			require.Len(t, notices, 1)
			assert.Equal(t, board.ActionVote, notices[0].Action)
			assert.Empty(t, b.Notices())
		})
	}
}

func TestVoteHelpful_RetryAfterRollback(t *testing.T) {
	s := seed(t)
	s.VoteErr = errors.New("offline")
	b := load(t, s)

	p, err := b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)
	wait(t, p)

	s.SetErr(&s.VoteErr, nil)
	p, err = b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)
	res := wait(t, p)
	assert.Equal(t, board.OutcomeSaved, res.Outcome)
	assert.Equal(t, 3, find(t, b, "r1").HelpfulCount)
}

func TestVoteHelpful_ReranksOptimistically(t *testing.T) {
	s := seed(t)
	b := load(t, s)
	for _, u := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"} {
		p, err := b.VoteHelpful(context.Background(), "r1", &models.User{Email: u})
		require.NoError(t, err)
		wait(t, p)
	}
	// r1 has 6 votes against r2's 5
	assert.Equal(t, []string{"r1", "r2"}, ids(b.Recommendations()))
}

func TestVoteHelpful_CountMismatchMarksStale(t *testing.T) {
	s := seed(t)
	n := 42
	s.VoteCount = &n
	b := load(t, s)

	p, err := b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)
	res := wait(t, p)

	assert.Equal(t, board.OutcomeSaved, res.Outcome)
	assert.Equal(t, 3, find(t, b, "r1").HelpfulCount, "votedBy stays the source of truth")
	assert.True(t, b.Stale())

	require.NoError(t, b.Reload(context.Background()))
	assert.False(t, b.Stale())
}

func TestVoteHelpful_Rejections(t *testing.T) {
	s := seed(t)
	b := load(t, s)

	_, err := b.VoteHelpful(context.Background(), "r1", nil)
	assert.ErrorIs(t, err, board.ErrUnauthorized)

	_, err = b.VoteHelpful(context.Background(), "r1", &models.User{})
	assert.ErrorIs(t, err, board.ErrUnauthorized)

	_, err = b.VoteHelpful(context.Background(), "nope", carol)
	assert.ErrorIs(t, err, board.ErrUnknownRecommendation)

	_, err = b.VoteHelpful(context.Background(), "r1", &models.User{Email: "v1@x.com"})
	assert.ErrorIs(t, err, board.ErrAlreadyVoted)

	assert.Equal(t, 0, s.Calls("VoteHelpful"))
}

func TestMarkBest_Scenario(t *testing.T) {
	s := seed(t)
	b := load(t, s)
	require.Equal(t, []string{"r2", "r1"}, ids(b.Recommendations()))

	p, err := b.MarkBest(context.Background(), "r1", alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(b.Recommendations()))

	res := wait(t, p)
	assert.Equal(t, board.OutcomeSaved, res.Outcome)
	assert.True(t, find(t, b, "r1").IsAccepted)
	assert.False(t, find(t, b, "r2").IsAccepted)
	assert.True(t, b.Query().IsResolved)
}

func TestMarkBest_Exclusive(t *testing.T) {
	s := seed(t)
	b := load(t, s)

	p, err := b.MarkBest(context.Background(), "r2", alice)
	require.NoError(t, err)
	wait(t, p)

	p, err = b.MarkBest(context.Background(), "r1", alice)
	require.NoError(t, err)
	wait(t, p)

	accepted := 0
	for _, r := range b.Recommendations() {
		if r.IsAccepted {
			accepted++
			assert.Equal(t, "r1", r.ID)
		}
	}
	assert.Equal(t, 1, accepted)

	stored, _ := s.Recommendation("r2")
	assert.False(t, stored.IsAccepted)
}

func TestMarkBest_Forbidden(t *testing.T) {
	s := seed(t)
	b := load(t, s)
	before := b.Recommendations()
	callsBefore := s.TotalCalls()

	_, err := b.MarkBest(context.Background(), "r1", bob)
	assert.ErrorIs(t, err, board.ErrForbidden)

	_, err = b.MarkBest(context.Background(), "r1", nil)
	assert.ErrorIs(t, err, board.ErrUnauthorized)

	assert.Equal(t, before, b.Recommendations())
	assert.Equal(t, callsBefore, s.TotalCalls())
}

func TestMarkBest_AlreadyAcceptedIsNoop(t *testing.T) {
	s := seed(t)
	b := load(t, s)

	p, err := b.MarkBest(context.Background(), "r1", alice)
	require.NoError(t, err)
	wait(t, p)

	p, err = b.MarkBest(context.Background(), "r1", alice)
	require.NoError(t, err)
	res, ok := p.Result()
	require.True(t, ok, "no-op must settle immediately")
	assert.Equal(t, board.OutcomeSaved, res.Outcome)
	assert.Equal(t, 1, s.Calls("MarkBest"))
}

func TestMarkBest_Rollback(t *testing.T) {
	s := seed(t)
	b := load(t, s)

	p, err := b.MarkBest(context.Background(), "r2", alice)
	require.NoError(t, err)
	wait(t, p)
	before := b.Recommendations()

	s.SetErr(&s.MarkBestErr, errors.New("503"))
	p, err = b.MarkBest(context.Background(), "r1", alice)
	require.NoError(t, err)
	res := wait(t, p)

	assert.Equal(t, board.OutcomeRolledBack, res.Outcome)
	assert.ErrorIs(t, res.Err, board.ErrNetworkFailure)
	assert.Equal(t, before, b.Recommendations())
	assert.True(t, find(t, b, "r2").IsAccepted)
}

func TestClose_AbandonsLateResults(t *testing.T) {
	s := seed(t)
	s.Gate = make(chan struct{})
	s.VoteErr = errors.New("late failure")
	b := load(t, s)

	vp, err := b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)
	mp, err := b.MarkBest(context.Background(), "r1", alice)
	require.NoError(t, err)

	b.Close()
	close(s.Gate)

	assert.Equal(t, board.OutcomeAbandoned, wait(t, vp).Outcome)
	assert.Equal(t, board.OutcomeAbandoned, wait(t, mp).Outcome)
	assert.Empty(t, b.Notices())

	_, err = b.VoteHelpful(context.Background(), "r2", carol)
	assert.ErrorIs(t, err, board.ErrClosed)
	assert.ErrorIs(t, b.Reload(context.Background()), board.ErrClosed)
}

func TestReload_KeepsInFlightVote(t *testing.T) {
	s := seed(t)
	s.Gate = make(chan struct{})
	b := load(t, s)

	p, err := b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)

	require.NoError(t, b.Reload(context.Background()))
	assert.Contains(t, find(t, b, "r1").VotedBy, carol.Email)

	close(s.Gate)
	wait(t, p)
}

func TestSubmit(t *testing.T) {
	s := seed(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b := load(t, s, board.WithClock(func() time.Time { return now }))

	got, err := b.Submit(context.Background(), models.RecommendationFields{
		Title: "  Try this ", ProductName: "Nuphy Air75", Reason: "low profile",
	}, bob)
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Try this", got.Title)
	assert.Equal(t, bob.Email, got.RecommenderEmail)
	assert.Equal(t, 0, got.HelpfulCount)
	assert.Empty(t, got.VotedBy)
	assert.False(t, got.IsAccepted)
	assert.True(t, now.Equal(got.CreatedAt))

	assert.Len(t, b.Recommendations(), 3)
	assert.Equal(t, 2, s.Calls("ListRecommendations"))
	assert.Equal(t, 2, b.Query().RecommendationCount, "count is owned by the store")
}

func TestSubmit_Rejections(t *testing.T) {
	valid := models.RecommendationFields{Title: "t", ProductName: "p", Reason: "r"}
	tests := []struct {
		name   string
		fields models.RecommendationFields
		author *models.User
		opts   []board.Option
		want   error
	}{
		{name: "anonymous", fields: valid, author: nil, want: board.ErrUnauthorized},
		{name: "blank title", fields: models.RecommendationFields{Title: "   ", ProductName: "p", Reason: "r"}, author: bob, want: board.ErrInvalidInput},
		{name: "bad image url", fields: models.RecommendationFields{Title: "t", ProductName: "p", Reason: "r", ProductImage: "nope"}, author: bob, want: board.ErrInvalidInput},
		{name: "image required", fields: valid, author: bob, opts: []board.Option{board.WithRequireImage(true)}, want: board.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seed(t)
			b := load(t, s, tt.opts...)
			_, err := b.Submit(context.Background(), tt.fields, tt.author)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, s.Calls("CreateRecommendation"))
		})
	}
}

func TestSubmit_StoreFailureLeavesBoard(t *testing.T) {
	s := seed(t)
	s.CreateErr = errors.New("500")
	b := load(t, s)
	before := b.Recommendations()

	_, err := b.Submit(context.Background(), models.RecommendationFields{Title: "t", ProductName: "p", Reason: "r"}, bob)
	assert.ErrorIs(t, err, board.ErrNetworkFailure)
	assert.Equal(t, before, b.Recommendations())
}

func TestSubmit_ReloadFailureMergesCreated(t *testing.T) {
	s := seed(t)
	b := load(t, s)
	s.SetErr(&s.ListErr, errors.New("flaky"))

	got, err := b.Submit(context.Background(), models.RecommendationFields{Title: "t", ProductName: "p", Reason: "r"}, bob)
	require.NoError(t, err)
	assert.Equal(t, got.ID, find(t, b, got.ID).ID)
}

func TestWithDispatcher_WorkerPool(t *testing.T) {
	pool := jobs.NewWorkerPool(nil, 2, 8)
	pool.Start(context.Background())
	defer pool.Stop()

	s := seed(t)
	b := load(t, s, board.WithDispatcher(pool))

	p, err := b.VoteHelpful(context.Background(), "r2", carol)
	require.NoError(t, err)
	assert.Equal(t, board.OutcomeSaved, wait(t, p).Outcome)
}

type refusingDispatcher struct{}

func (refusingDispatcher) Submit(jobs.Task) error { return jobs.ErrQueueFull }

func TestDispatchFailureRollsBack(t *testing.T) {
	s := seed(t)
	b := load(t, s, board.WithDispatcher(refusingDispatcher{}))
	before := b.Recommendations()

	p, err := b.VoteHelpful(context.Background(), "r1", carol)
	require.NoError(t, err)
	res, ok := p.Result()
	require.True(t, ok)
	assert.Equal(t, board.OutcomeRolledBack, res.Outcome)
	assert.ErrorIs(t, res.Err, jobs.ErrQueueFull)
	assert.Equal(t, before, b.Recommendations())
	assert.Equal(t, 0, s.Calls("VoteHelpful"))
}

// hookedStore lets a test intercept the recommendation list after the
// underlying store has answered.
type hookedStore struct {
	*mock.Store
	afterList func(recs []models.Recommendation) []models.Recommendation
}

func (s *hookedStore) ListRecommendations(ctx context.Context, queryID string) ([]models.Recommendation, error) {
	recs, err := s.Store.ListRecommendations(ctx, queryID)
	if err == nil && s.afterList != nil {
		recs = s.afterList(recs)
	}
	return recs, err
}

func loadHooked(t *testing.T) (*hookedStore, *board.Board) {
	t.Helper()
	s := &hookedStore{Store: seed(t)}
	b, err := board.Load(context.Background(), s, "q1")
	require.NoError(t, err)
	return s, b
}

func TestReload_RefetchesAfterMarkBestSettlesMidFetch(t *testing.T) {
	s, b := loadHooked(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.afterList = func(recs []models.Recommendation) []models.Recommendation {
		once.Do(func() {
			close(entered)
			<-release
		})
		return recs
	}

	errc := make(chan error, 1)
	go func() { errc <- b.Reload(context.Background()) }()
	<-entered

	p, err := b.MarkBest(context.Background(), "r1", alice)
	require.NoError(t, err)
	require.Equal(t, board.OutcomeSaved, wait(t, p).Outcome)

	close(release)
	require.NoError(t, <-errc)

	assert.True(t, find(t, b, "r1").IsAccepted)
	assert.True(t, b.Query().IsResolved)
	assert.Equal(t, []string{"r1", "r2"}, ids(b.Recommendations()))
	assert.False(t, b.Stale())
	assert.Equal(t, 3, s.Calls("ListRecommendations"), "load, interrupted reload, retry")
}

func TestReload_KeepsStateWhenActionsKeepSettling(t *testing.T) {
	s, b := loadHooked(t)

	voters := []*models.User{carol, bob, {Email: "dave@x.com"}}
	var calls atomic.Int32
	s.afterList = func(recs []models.Recommendation) []models.Recommendation {
		if i := int(calls.Add(1)) - 1; i < len(voters) {
			if p, err := b.VoteHelpful(context.Background(), "r1", voters[i]); err == nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_, _ = p.Wait(ctx)
				cancel()
			}
		}
		return recs
	}

	require.NoError(t, b.Reload(context.Background()))

	assert.True(t, b.Stale())
	assert.Len(t, find(t, b, "r1").VotedBy, 5, "settled votes survive the discarded fetches")
	assert.EqualValues(t, 3, calls.Load())
}

func TestMarkBest_OverlappingFailuresRestoreConfirmed(t *testing.T) {
	s := seed(t)
	s.Gate = make(chan struct{})
	s.MarkBestErr = errors.New("503")
	b := load(t, s)

	first, err := b.MarkBest(context.Background(), "r1", alice)
	require.NoError(t, err)
	second, err := b.MarkBest(context.Background(), "r2", alice)
	require.NoError(t, err)

	close(s.Gate)
	assert.Equal(t, board.OutcomeRolledBack, wait(t, first).Outcome)
	assert.Equal(t, board.OutcomeRolledBack, wait(t, second).Outcome)

	for _, r := range b.Recommendations() {
		assert.False(t, r.IsAccepted, "recommendation %s", r.ID)
	}
	assert.Equal(t, []string{"r2", "r1"}, ids(b.Recommendations()))
	assert.Len(t, b.Notices(), 2)
}

func TestSubmit_RefreshDropsForeignRecommendations(t *testing.T) {
	s, b := loadHooked(t)
	s.afterList = func(recs []models.Recommendation) []models.Recommendation {
		return append(recs, models.Recommendation{ID: "x9", QueryID: "q2", Title: "elsewhere"})
	}

	_, err := b.Submit(context.Background(), models.RecommendationFields{Title: "t", ProductName: "p", Reason: "r"}, bob)
	require.NoError(t, err)

	assert.NotContains(t, ids(b.Recommendations()), "x9")
	assert.Len(t, b.Recommendations(), 3)
	assert.False(t, b.Stale())
}
