package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/recboard/internal/board"
	"github.com/garnizeh/recboard/internal/identity"
	"github.com/garnizeh/recboard/internal/session"
	"github.com/garnizeh/recboard/pkg/models"
)

// BoardsHandler exposes the recommendation board of one page-view.
type BoardsHandler struct {
	registry *session.Registry
	// wait bounds how long a synchronous action waits for its store call.
	wait time.Duration
}

func NewBoardsHandler(registry *session.Registry, wait time.Duration) *BoardsHandler {
	if wait <= 0 {
		wait = 15 * time.Second
	}
	return &BoardsHandler{registry: registry, wait: wait}
}

type openBoardRequest struct {
	QueryID string `json:"queryId"`
}

type boardResponse struct {
	ID string `json:"id"`
	board.Snapshot
	Notices []board.Notice `json:"notices,omitempty"`
}

type actionResponse struct {
	Outcome      string        `json:"outcome"`
	Error        string        `json:"error,omitempty"`
	HelpfulCount *int          `json:"helpfulCount,omitempty"`
	Board        boardResponse `json:"board"`
}

func (h *BoardsHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openBoardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	id, b, err := h.registry.Open(r.Context(), req.QueryID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, boardResponse{ID: id, Snapshot: b.Snapshot()})
}

// Get returns the current board state and drains its notices. A board the
// store disagreed with is reloaded first.
func (h *BoardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, b, ok := h.board(w, r)
	if !ok {
		return
	}
	if b.Stale() {
		if err := b.Reload(r.Context()); err != nil {
			logger.Warn("board reload failed", slog.String("board_id", id), slog.Any("err", err))
		}
	}
	writeJSON(w, http.StatusOK, h.state(id, b))
}

func (h *BoardsHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Close(mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BoardsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	id, b, ok := h.board(w, r)
	if !ok {
		return
	}
	if err := b.Reload(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state(id, b))
}

func (h *BoardsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, b, ok := h.board(w, r)
	if !ok {
		return
	}
	var fields models.RecommendationFields
	if err := decodeJSON(r, &fields); err != nil {
		writeErr(w, err)
		return
	}
	rec, err := b.Submit(r.Context(), fields, identity.FromContext(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Recommendation models.Recommendation `json:"recommendation"`
		Board          boardResponse         `json:"board"`
	}{rec, boardResponse{ID: id, Snapshot: b.Snapshot()}})
}

func (h *BoardsHandler) Helpful(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, b *board.Board, recID string, u *models.User) (*board.Pending, error) {
		return b.VoteHelpful(ctx, recID, u)
	})
}

func (h *BoardsHandler) Best(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, b *board.Board, recID string, u *models.User) (*board.Pending, error) {
		return b.MarkBest(ctx, recID, u)
	})
}

type actionFunc func(ctx context.Context, b *board.Board, recID string, u *models.User) (*board.Pending, error)

// act runs an optimistic action. By default it waits for the store and
// answers with the settled outcome; ?async=1 answers 202 with the optimistic
// state right away.
func (h *BoardsHandler) act(w http.ResponseWriter, r *http.Request, fn actionFunc) {
	id, b, ok := h.board(w, r)
	if !ok {
		return
	}
	p, err := fn(r.Context(), b, mux.Vars(r)["recId"], identity.FromContext(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}

	if async := r.URL.Query().Get("async"); async == "1" || async == "true" {
		resp := actionResponse{Outcome: "pending"}
		status := http.StatusAccepted
		if res, done := p.Result(); done {
			resp = actionFrom(res)
			status = http.StatusOK
		}
		resp.Board = boardResponse{ID: id, Snapshot: b.Snapshot()}
		writeJSON(w, status, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.wait)
	defer cancel()
	res, err := p.Wait(ctx)
	if err != nil {
		// still reconciling; the outcome will show up as a notice
		writeJSON(w, http.StatusAccepted, actionResponse{Outcome: "pending", Board: boardResponse{ID: id, Snapshot: b.Snapshot()}})
		return
	}

	resp := actionFrom(res)
	resp.Board = boardResponse{ID: id, Snapshot: b.Snapshot()}
	status := http.StatusOK
	switch res.Outcome {
	case board.OutcomeRolledBack:
		status = http.StatusBadGateway
	case board.OutcomeAbandoned:
		status = http.StatusGone
	}
	writeJSON(w, status, resp)
}

func actionFrom(res board.Result) actionResponse {
	out := actionResponse{Outcome: res.Outcome.String(), HelpfulCount: res.ServerHelpfulCount}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (h *BoardsHandler) board(w http.ResponseWriter, r *http.Request) (string, *board.Board, bool) {
	id := mux.Vars(r)["id"]
	b, err := h.registry.Get(id)
	if err != nil {
		writeErr(w, err)
		return "", nil, false
	}
	return id, b, true
}

func (h *BoardsHandler) state(id string, b *board.Board) boardResponse {
	return boardResponse{ID: id, Snapshot: b.Snapshot(), Notices: b.Notices()}
}
