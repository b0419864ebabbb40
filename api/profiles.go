package api

import (
	"cmp"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

// inboxFanout caps concurrent recommendation reads when building an inbox.
const inboxFanout = 8

// ProfilesHandler serves user pages and the signed-in user's own lists.
type ProfilesHandler struct {
	repo repository.Backend
}

func NewProfilesHandler(repo repository.Backend) *ProfilesHandler {
	return &ProfilesHandler{repo: repo}
}

func (h *ProfilesHandler) Profile(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(mux.Vars(r)["email"])
	if email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}

	var (
		queries []models.Query
		recs    []models.Recommendation
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		queries, err = h.repo.ListQueries(ctx, models.QueryFilter{OwnerEmail: email})
		return err
	})
	g.Go(func() error {
		var err error
		recs, err = h.repo.ListByRecommender(ctx, email)
		return err
	})
	if err := g.Wait(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewProfile(email, queries, recs))
}

// Me returns the signed-in user.
func (h *ProfilesHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Inbox lists recommendations other users made on the caller's queries,
// newest first.
func (h *ProfilesHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	queries, err := h.repo.ListQueries(r.Context(), models.QueryFilter{OwnerEmail: u.Email})
	if err != nil {
		writeErr(w, err)
		return
	}

	var (
		mu  sync.Mutex
		out = []models.Recommendation{}
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(inboxFanout)
	for _, q := range queries {
		g.Go(func() error {
			recs, err := h.repo.ListRecommendations(ctx, q.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, rec := range recs {
				if rec.RecommenderEmail == u.Email {
					continue
				}
				if rec.QueryTitle == "" {
					rec.QueryTitle = q.Title
				}
				rec.Normalize()
				out = append(out, rec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeErr(w, err)
		return
	}
	slices.SortFunc(out, func(a, b models.Recommendation) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	writeJSON(w, http.StatusOK, out)
}

func (h *ProfilesHandler) MyRecommendations(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	recs, err := h.repo.ListByRecommender(r.Context(), u.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// DeleteRecommendation removes one of the caller's own recommendations.
// Recommendations by anyone else are reported as not found.
func (h *ProfilesHandler) DeleteRecommendation(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	mine, err := h.repo.ListByRecommender(r.Context(), u.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !slices.ContainsFunc(mine, func(rec models.Recommendation) bool { return rec.ID == id }) {
		writeErr(w, repository.ErrNotFound)
		return
	}
	if err := h.repo.DeleteRecommendation(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
