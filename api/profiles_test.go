package api_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/recboard/pkg/models"
)

func TestProfiles_Profile(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/v1/users/bob@x.com/profile", "", nil)
	expectStatus(t, w, http.StatusOK)
	p := decode[models.Profile](t, w)
	assert.Equal(t, "Bob", p.Name)
	assert.Equal(t, models.ProfileStats{Queries: 0, Recommendations: 1, HelpfulVotes: 1}, p.Stats)

	w = e.do(t, http.MethodGet, "/v1/users/alice@x.com/profile", "", nil)
	expectStatus(t, w, http.StatusOK)
	p = decode[models.Profile](t, w)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 1, p.Stats.Queries)

	w = e.do(t, http.MethodGet, "/v1/users/nobody@x.com/profile", "", nil)
	expectStatus(t, w, http.StatusOK)
	assert.Equal(t, "nobody", decode[models.Profile](t, w).Name)
}

func TestProfiles_Me(t *testing.T) {
	e := newEnv(t)
	expectStatus(t, e.do(t, http.MethodGet, "/v1/me", "", nil), http.StatusUnauthorized)

	w := e.do(t, http.MethodGet, "/v1/me", "alice@x.com", nil)
	expectStatus(t, w, http.StatusOK)
	assert.Equal(t, "alice@x.com", decode[models.User](t, w).Email)
}

func TestProfiles_Inbox(t *testing.T) {
	e := newEnv(t)
	e.store.AddRecommendation(models.Recommendation{
		ID: "own", QueryID: "q1", Title: "self", ProductName: "p", Reason: "r",
		RecommenderEmail: "alice@x.com", CreatedAt: base.Add(3 * time.Hour),
	})

	expectStatus(t, e.do(t, http.MethodGet, "/v1/me/inbox", "", nil), http.StatusUnauthorized)

	w := e.do(t, http.MethodGet, "/v1/me/inbox", "alice@x.com", nil)
	expectStatus(t, w, http.StatusOK)
	recs := decode[[]models.Recommendation](t, w)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"r2", "r1"}, recIDs(recs))
	assert.Equal(t, "Quiet keyboard", recs[0].QueryTitle)

	w = e.do(t, http.MethodGet, "/v1/me/inbox", "bob@x.com", nil)
	expectStatus(t, w, http.StatusOK)
	assert.Empty(t, decode[[]models.Recommendation](t, w))
}

func TestProfiles_MyRecommendationsAndDelete(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/v1/me/recommendations", "bob@x.com", nil)
	expectStatus(t, w, http.StatusOK)
	assert.Equal(t, []string{"r1"}, recIDs(decode[[]models.Recommendation](t, w)))

	expectStatus(t, e.do(t, http.MethodDelete, "/v1/recommendations/r1", "", nil), http.StatusUnauthorized)
	expectStatus(t, e.do(t, http.MethodDelete, "/v1/recommendations/r1", "carol@x.com", nil), http.StatusNotFound)
	assert.Equal(t, 0, e.store.Calls("DeleteRecommendation"))

	expectStatus(t, e.do(t, http.MethodDelete, "/v1/recommendations/r1", "bob@x.com", nil), http.StatusNoContent)
	_, ok := e.store.Recommendation("r1")
	assert.False(t, ok)
}
