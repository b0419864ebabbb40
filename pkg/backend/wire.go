package backend

import (
	"strings"
	"time"

	"github.com/garnizeh/recboard/pkg/models"
)

// The backend speaks a loosely typed, Mongo-style JSON. Field spellings have
// drifted over its revisions, so decoding accepts the known aliases.

type wireQuery struct {
	MongoID             string    `json:"_id,omitempty"`
	ID                  string    `json:"id,omitempty"`
	Title               string    `json:"title,omitempty"`
	QueryTitle          string    `json:"queryTitle,omitempty"`
	ProductName         string    `json:"productName"`
	ProductBrand        string    `json:"productBrand"`
	ProductImage        string    `json:"productImage"`
	Reason              string    `json:"reason"`
	UserEmail           string    `json:"userEmail,omitempty"`
	Email               string    `json:"email,omitempty"`
	UserName            string    `json:"userName,omitempty"`
	Category            string    `json:"category,omitempty"`
	Tags                []string  `json:"tags"`
	RecommendationCount int       `json:"recommendationCount"`
	IsResolved          bool      `json:"isResolved"`
	CreatedAt           time.Time `json:"createdAt"`
}

func (w wireQuery) model() models.Query {
	q := models.Query{
		ID:                  firstNonEmpty(w.MongoID, w.ID),
		Title:               firstNonEmpty(w.Title, w.QueryTitle),
		ProductName:         w.ProductName,
		ProductBrand:        w.ProductBrand,
		ProductImage:        w.ProductImage,
		Reason:              w.Reason,
		OwnerEmail:          firstNonEmpty(w.UserEmail, w.Email),
		OwnerName:           w.UserName,
		Category:            w.Category,
		Tags:                w.Tags,
		RecommendationCount: max(w.RecommendationCount, 0),
		IsResolved:          w.IsResolved,
		CreatedAt:           w.CreatedAt,
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return q
}

func fromQuery(q *models.Query) wireQuery {
	return wireQuery{
		Title:               q.Title,
		QueryTitle:          q.Title,
		ProductName:         q.ProductName,
		ProductBrand:        q.ProductBrand,
		ProductImage:        q.ProductImage,
		Reason:              q.Reason,
		UserEmail:           q.OwnerEmail,
		UserName:            q.OwnerName,
		Category:            q.Category,
		Tags:                q.Tags,
		RecommendationCount: q.RecommendationCount,
		IsResolved:          q.IsResolved,
		CreatedAt:           q.CreatedAt,
	}
}

type wireRecommendation struct {
	MongoID          string    `json:"_id,omitempty"`
	ID               string    `json:"id,omitempty"`
	QueryID          string    `json:"queryId"`
	QueryTitle       string    `json:"queryTitle,omitempty"`
	Title            string    `json:"title"`
	ProductName      string    `json:"productName"`
	ProductImage     string    `json:"productImage"`
	Reason           string    `json:"reason"`
	RecommenderEmail string    `json:"recommenderEmail"`
	RecommenderName  string    `json:"recommenderName,omitempty"`
	HelpfulCount     int       `json:"helpfulCount"`
	VotedBy          []string  `json:"votedBy"`
	IsAccepted       bool      `json:"isAccepted"`
	CreatedAt        time.Time `json:"createdAt"`
}

// model converts and normalizes; helpfulCount is re-derived from votedBy.
func (w wireRecommendation) model() models.Recommendation {
	r := models.Recommendation{
		ID:               firstNonEmpty(w.MongoID, w.ID),
		QueryID:          w.QueryID,
		QueryTitle:       w.QueryTitle,
		Title:            w.Title,
		ProductName:      w.ProductName,
		ProductImage:     w.ProductImage,
		Reason:           w.Reason,
		RecommenderEmail: w.RecommenderEmail,
		RecommenderName:  w.RecommenderName,
		VotedBy:          w.VotedBy,
		IsAccepted:       w.IsAccepted,
		CreatedAt:        w.CreatedAt,
	}
	r.Normalize()
	return r
}

func fromRecommendation(r *models.Recommendation) wireRecommendation {
	return wireRecommendation{
		QueryID:          r.QueryID,
		QueryTitle:       r.QueryTitle,
		Title:            r.Title,
		ProductName:      r.ProductName,
		ProductImage:     r.ProductImage,
		Reason:           r.Reason,
		RecommenderEmail: r.RecommenderEmail,
		RecommenderName:  r.RecommenderName,
		HelpfulCount:     len(r.VotedBy),
		VotedBy:          r.VotedBy,
		IsAccepted:       r.IsAccepted,
		CreatedAt:        r.CreatedAt,
	}
}

// insertResult is what the backend answers to POSTs: either the stored
// document or a bare {"insertedId": ...}.
type insertResult struct {
	InsertedID string `json:"insertedId"`
	MongoID    string `json:"_id"`
	ID         string `json:"id"`
}

func (r insertResult) id() string {
	return firstNonEmpty(r.InsertedID, r.MongoID, r.ID)
}

type voteRequest struct {
	UserEmail string `json:"userEmail"`
}

type acceptRequest struct {
	QueryID string `json:"queryId"`
}

// voteResponse tolerates answers with no body fields at all; a 2xx without
// an explicit success flag counts as success.
type voteResponse struct {
	Success      *bool  `json:"success"`
	HelpfulCount *int   `json:"helpfulCount"`
	Message      string `json:"message"`
	// some revisions answer with the updated document
	VotedBy []string `json:"votedBy"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
