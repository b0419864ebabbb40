package models

import (
	"slices"
	"strings"
	"time"
)

// Domain models shared by the board, the stores and the HTTP layer.

// User is the signed-in identity as reported by the identity provider.
type User struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// Query is a request for alternatives to a product.
type Query struct {
	ID                  string    `json:"id" firestore:"-"`
	Title               string    `json:"title" firestore:"title"`
	ProductName         string    `json:"productName" firestore:"productName"`
	ProductBrand        string    `json:"productBrand" firestore:"productBrand"`
	ProductImage        string    `json:"productImage" firestore:"productImage"`
	Reason              string    `json:"reason" firestore:"reason"`
	OwnerEmail          string    `json:"ownerEmail" firestore:"ownerEmail"`
	OwnerName           string    `json:"ownerName,omitempty" firestore:"ownerName"`
	Category            string    `json:"category,omitempty" firestore:"category"`
	Tags                []string  `json:"tags" firestore:"tags"`
	RecommendationCount int       `json:"recommendationCount" firestore:"recommendationCount"`
	IsResolved          bool      `json:"isResolved" firestore:"isResolved"`
	CreatedAt           time.Time `json:"createdAt" firestore:"createdAt"`
}

// Recommendation is an alternative product proposed against one Query.
type Recommendation struct {
	ID               string    `json:"id" firestore:"-"`
	QueryID          string    `json:"queryId" firestore:"queryId"`
	QueryTitle       string    `json:"queryTitle,omitempty" firestore:"queryTitle"`
	Title            string    `json:"title" firestore:"title"`
	ProductName      string    `json:"productName" firestore:"productName"`
	ProductImage     string    `json:"productImage" firestore:"productImage"`
	Reason           string    `json:"reason" firestore:"reason"`
	RecommenderEmail string    `json:"recommenderEmail" firestore:"recommenderEmail"`
	RecommenderName  string    `json:"recommenderName,omitempty" firestore:"recommenderName"`
	HelpfulCount     int       `json:"helpfulCount" firestore:"helpfulCount"`
	VotedBy          []string  `json:"votedBy" firestore:"votedBy"`
	IsAccepted       bool      `json:"isAccepted" firestore:"isAccepted"`
	CreatedAt        time.Time `json:"createdAt" firestore:"createdAt"`
}

// HasVoted reports whether email is already in VotedBy.
func (r *Recommendation) HasVoted(email string) bool {
	return slices.Contains(r.VotedBy, email)
}

// Normalize dedupes VotedBy and derives HelpfulCount from it. VotedBy is the
// source of truth for the count.
func (r *Recommendation) Normalize() {
	if r.VotedBy == nil {
		r.VotedBy = []string{}
	}
	seen := make(map[string]struct{}, len(r.VotedBy))
	out := make([]string, 0, len(r.VotedBy))
	for _, v := range r.VotedBy {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	r.VotedBy = out
	r.HelpfulCount = len(r.VotedBy)
}

// Clone returns a deep copy.
func (r Recommendation) Clone() Recommendation {
	r.VotedBy = slices.Clone(r.VotedBy)
	if r.VotedBy == nil {
		r.VotedBy = []string{}
	}
	return r
}

// Clone returns a deep copy.
func (q Query) Clone() Query {
	q.Tags = slices.Clone(q.Tags)
	return q
}

// RecommendationFields are the user-supplied parts of a new recommendation.
type RecommendationFields struct {
	Title        string `json:"title" validate:"required,max=200"`
	ProductName  string `json:"productName" validate:"required,max=200"`
	ProductImage string `json:"productImage" validate:"omitempty,url"`
	Reason       string `json:"reason" validate:"required,max=4000"`
}

// QueryFields are the user-supplied parts of a query.
type QueryFields struct {
	Title        string   `json:"title" validate:"required,max=200"`
	ProductName  string   `json:"productName" validate:"required,max=200"`
	ProductBrand string   `json:"productBrand" validate:"required,max=200"`
	ProductImage string   `json:"productImage" validate:"required,url"`
	Reason       string   `json:"reason" validate:"required,max=4000"`
	Category     string   `json:"category,omitempty" validate:"omitempty,max=100"`
	Tags         []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=50"`
}

// Apply copies the editable fields onto q.
func (f QueryFields) Apply(q *Query) {
	q.Title = strings.TrimSpace(f.Title)
	q.ProductName = strings.TrimSpace(f.ProductName)
	q.ProductBrand = strings.TrimSpace(f.ProductBrand)
	q.ProductImage = strings.TrimSpace(f.ProductImage)
	q.Reason = strings.TrimSpace(f.Reason)
	q.Category = strings.TrimSpace(f.Category)
	q.Tags = NormalizeTags(f.Tags)
}

// NormalizeTags trims, lowercases and dedupes tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// VoteResult is the store's answer to a helpful vote. HelpfulCount is nil when
// the store did not report an authoritative count.
type VoteResult struct {
	Success      bool   `json:"success"`
	HelpfulCount *int   `json:"helpfulCount,omitempty"`
	Message      string `json:"message,omitempty"`
}

// AcceptResult is the store's answer to a mark-best request.
type AcceptResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// QueryFilter narrows query listings. Zero value lists everything.
type QueryFilter struct {
	OwnerEmail string
	Limit      int
}

// ProfileStats summarises a user's activity.
type ProfileStats struct {
	Queries         int `json:"queries"`
	Recommendations int `json:"recommendations"`
	HelpfulVotes    int `json:"helpfulVotes"`
}

// Profile is the public page of a user.
type Profile struct {
	Email           string           `json:"email"`
	Name            string           `json:"name"`
	Stats           ProfileStats     `json:"stats"`
	Queries         []Query          `json:"queries"`
	Recommendations []Recommendation `json:"recommendations"`
}

// NewProfile assembles a profile and derives its display name from the
// recommender name, then the query owner name, then the email local part.
func NewProfile(email string, queries []Query, recs []Recommendation) Profile {
	p := Profile{Email: email, Queries: queries, Recommendations: recs}
	if p.Queries == nil {
		p.Queries = []Query{}
	}
	if p.Recommendations == nil {
		p.Recommendations = []Recommendation{}
	}
	p.Stats.Queries = len(p.Queries)
	p.Stats.Recommendations = len(p.Recommendations)
	for _, r := range p.Recommendations {
		p.Stats.HelpfulVotes += r.HelpfulCount
	}

	switch {
	case len(recs) > 0 && recs[0].RecommenderName != "":
		p.Name = recs[0].RecommenderName
	case len(queries) > 0 && queries[0].OwnerName != "":
		p.Name = queries[0].OwnerName
	default:
		p.Name, _, _ = strings.Cut(email, "@")
	}
	return p
}

// Account is a locally stored identity, used only by the local identity mode.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PhotoURL     string    `json:"photoURL,omitempty"`
	PasswordHash string    `json:"-"`
	Created      time.Time `json:"created"`
}

// User returns the session identity of the account.
func (a *Account) User() *User {
	return &User{Email: a.Email, DisplayName: a.DisplayName, PhotoURL: a.PhotoURL}
}
