package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/recboard/internal/validation"
	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

const maxListLimit = 100

// QueriesHandler is CRUD over queries. Only the owner may edit or delete.
type QueriesHandler struct {
	repo repository.Backend
	now  func() time.Time
}

func NewQueriesHandler(repo repository.Backend) *QueriesHandler {
	return &QueriesHandler{repo: repo, now: time.Now}
}

func (h *QueriesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := models.QueryFilter{OwnerEmail: strings.TrimSpace(r.URL.Query().Get("owner"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}
	qs, err := h.repo.ListQueries(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	if qs == nil {
		qs = []models.Query{}
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *QueriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.repo.GetQuery(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *QueriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var fields models.QueryFields
	if err := decodeJSON(r, &fields); err != nil {
		writeErr(w, err)
		return
	}
	q := &models.Query{OwnerEmail: u.Email, OwnerName: u.DisplayName, CreatedAt: h.now().UTC()}
	fields.Apply(q)
	if err := validation.Struct(fieldsOf(q)); err != nil {
		writeErr(w, err)
		return
	}

	created, err := h.repo.CreateQuery(r.Context(), q)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *QueriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	q, ok := h.owned(w, r)
	if !ok {
		return
	}
	var fields models.QueryFields
	if err := decodeJSON(r, &fields); err != nil {
		writeErr(w, err)
		return
	}
	fields.Apply(q)
	if err := validation.Struct(fieldsOf(q)); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.repo.UpdateQuery(r.Context(), q); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *QueriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.repo.DeleteQuery(r.Context(), q.ID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owned loads the addressed query and checks the caller owns it.
func (h *QueriesHandler) owned(w http.ResponseWriter, r *http.Request) (*models.Query, bool) {
	u, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}
	q, err := h.repo.GetQuery(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	if q.OwnerEmail != u.Email {
		writeError(w, http.StatusForbidden, "only the owner can change this query")
		return nil, false
	}
	return q, true
}

// fieldsOf re-extracts the trimmed editable fields for validation.
func fieldsOf(q *models.Query) models.QueryFields {
	return models.QueryFields{
		Title:        q.Title,
		ProductName:  q.ProductName,
		ProductBrand: q.ProductBrand,
		ProductImage: q.ProductImage,
		Reason:       q.Reason,
		Category:     q.Category,
		Tags:         q.Tags,
	}
}
