package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/garnizeh/recboard/pkg/models"
)

func decode[T any](op string, raw []byte) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", op, err)
	}
	return v, nil
}

func (c *Client) GetQuery(ctx context.Context, id string) (*models.Query, error) {
	raw, err := c.do(ctx, "get_query", http.MethodGet, "/queries/"+url.PathEscape(id), nil, nil, true)
	if err != nil {
		return nil, err
	}
	w, err := decode[wireQuery]("get_query", raw)
	if err != nil {
		return nil, err
	}
	q := w.model()
	if q.ID == "" {
		q.ID = id
	}
	return &q, nil
}

func (c *Client) ListRecommendations(ctx context.Context, queryID string) ([]models.Recommendation, error) {
	raw, err := c.do(ctx, "list_recommendations", http.MethodGet, "/recommendations", url.Values{"queryId": {queryID}}, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeRecommendations("list_recommendations", raw)
}

func decodeRecommendations(op string, raw []byte) ([]models.Recommendation, error) {
	ws, err := decode[[]wireRecommendation](op, raw)
	if err != nil {
		return nil, err
	}
	out := make([]models.Recommendation, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.model())
	}
	return out, nil
}

// CreateRecommendation is not retried: the backend does not dedupe inserts.
func (c *Client) CreateRecommendation(ctx context.Context, rec *models.Recommendation) (*models.Recommendation, error) {
	raw, err := c.do(ctx, "create_recommendation", http.MethodPost, "/recommendations", nil, fromRecommendation(rec), false)
	if err != nil {
		return nil, err
	}
	ins, err := decode[insertResult]("create_recommendation", raw)
	if err != nil {
		return nil, err
	}
	out := rec.Clone()
	if full, derr := decode[wireRecommendation]("create_recommendation", raw); derr == nil && firstNonEmpty(full.MongoID, full.ID) != "" && full.QueryID != "" {
		out = full.model()
	}
	if out.ID == "" {
		out.ID = ins.id()
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create_recommendation: backend returned no id")
	}
	out.Normalize()
	return &out, nil
}

// VoteHelpful is retried: the backend dedupes votes by email.
func (c *Client) VoteHelpful(ctx context.Context, recommendationID, voterEmail string) (*models.VoteResult, error) {
	path := "/recommendations/" + url.PathEscape(recommendationID) + "/helpful"
	raw, err := c.do(ctx, "vote_helpful", http.MethodPatch, path, nil, voteRequest{UserEmail: voterEmail}, true)
	if err != nil {
		return nil, err
	}
	w, err := decode[voteResponse]("vote_helpful", raw)
	if err != nil {
		return nil, err
	}
	res := &models.VoteResult{Success: w.Success == nil || *w.Success, HelpfulCount: w.HelpfulCount, Message: w.Message}
	if res.HelpfulCount == nil && w.VotedBy != nil {
		r := models.Recommendation{VotedBy: slices.Clone(w.VotedBy)}
		r.Normalize()
		n := r.HelpfulCount
		res.HelpfulCount = &n
	}
	return res, nil
}

// MarkBest is retried: accepting the same recommendation twice is harmless.
func (c *Client) MarkBest(ctx context.Context, recommendationID, queryID string) (*models.AcceptResult, error) {
	path := "/recommendations/" + url.PathEscape(recommendationID) + "/accept"
	raw, err := c.do(ctx, "mark_best", http.MethodPatch, path, nil, acceptRequest{QueryID: queryID}, true)
	if err != nil {
		return nil, err
	}
	w, err := decode[voteResponse]("mark_best", raw)
	if err != nil {
		return nil, err
	}
	return &models.AcceptResult{Success: w.Success == nil || *w.Success, Message: w.Message}, nil
}

func (c *Client) CreateQuery(ctx context.Context, q *models.Query) (*models.Query, error) {
	raw, err := c.do(ctx, "create_query", http.MethodPost, "/queries", nil, fromQuery(q), false)
	if err != nil {
		return nil, err
	}
	ins, err := decode[insertResult]("create_query", raw)
	if err != nil {
		return nil, err
	}
	out := q.Clone()
	out.ID = ins.id()
	if out.ID == "" {
		return nil, fmt.Errorf("create_query: backend returned no id")
	}
	return &out, nil
}

func (c *Client) UpdateQuery(ctx context.Context, q *models.Query) error {
	_, err := c.do(ctx, "update_query", http.MethodPut, "/queries/"+url.PathEscape(q.ID), nil, fromQuery(q), true)
	return err
}

func (c *Client) DeleteQuery(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete_query", http.MethodDelete, "/queries/"+url.PathEscape(id), nil, nil, true)
	return err
}

func (c *Client) ListQueries(ctx context.Context, filter models.QueryFilter) ([]models.Query, error) {
	v := url.Values{}
	if filter.OwnerEmail != "" {
		v.Set("userEmail", filter.OwnerEmail)
	}
	if filter.Limit > 0 {
		v.Set("limit", strconv.Itoa(filter.Limit))
	}
	raw, err := c.do(ctx, "list_queries", http.MethodGet, "/queries", v, nil, true)
	if err != nil {
		return nil, err
	}
	ws, err := decode[[]wireQuery]("list_queries", raw)
	if err != nil {
		return nil, err
	}
	out := make([]models.Query, 0, len(ws))
	for _, w := range ws {
		q := w.model()
		if filter.OwnerEmail != "" && q.OwnerEmail != filter.OwnerEmail {
			continue
		}
		out = append(out, q)
	}
	slices.SortStableFunc(out, func(a, b models.Query) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (c *Client) ListByRecommender(ctx context.Context, email string) ([]models.Recommendation, error) {
	raw, err := c.do(ctx, "list_by_recommender", http.MethodGet, "/my-recommendations", url.Values{"email": {email}}, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeRecommendations("list_by_recommender", raw)
}

func (c *Client) DeleteRecommendation(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete_recommendation", http.MethodDelete, "/recommendations/"+url.PathEscape(id), nil, nil, true)
	return err
}
