package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/garnizeh/recboard/internal/board"
	"github.com/garnizeh/recboard/internal/identity"
	"github.com/garnizeh/recboard/internal/session"
	"github.com/garnizeh/recboard/internal/validation"
	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

const maxBodyBytes = 1 << 20

var (
	errForbidden    = errors.New("forbidden")
	errBadRequest   = errors.New("invalid request")
	errUnauthorized = board.ErrUnauthorized
)

type errorResponse struct {
	Error  string                  `json:"error"`
	Status string                  `json:"status,omitempty"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps domain errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *validation.Error
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, board.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, board.ErrForbidden), errors.Is(err, errForbidden):
		status = http.StatusForbidden
	case errors.Is(err, board.ErrAlreadyVoted):
		status = http.StatusConflict
		resp.Status = "already_voted"
	case errors.Is(err, repository.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, board.ErrNotFound), errors.Is(err, board.ErrUnknownRecommendation),
		errors.Is(err, session.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, board.ErrInvalidInput), errors.Is(err, errBadRequest), verr != nil:
		status = http.StatusBadRequest
	case errors.Is(err, board.ErrClosed):
		status = http.StatusGone
	case errors.Is(err, board.ErrNetworkFailure):
		status = http.StatusBadGateway
	default:
		// anything else came back from the store
		logger.Error("store call failed", slog.Any("err", err))
		status = http.StatusBadGateway
		resp.Error = board.ErrNetworkFailure.Error()
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

// currentUser returns the signed-in user or writes 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u := identity.FromContext(r.Context())
	if u == nil || u.Email == "" {
		writeErr(w, errUnauthorized)
		return nil, false
	}
	return u, true
}
