package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	gfs "cloud.google.com/go/firestore"

	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

const driverName = "firestore"

// Store implements repository.Backend on two top-level collections, queries
// and recommendations. Votes live in the recommendation's votedBy array.
type Store struct {
	db     Client
	logger *slog.Logger
	now    func() time.Time
}

var _ repository.Backend = (*Store)(nil)

func New(db Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

func (s *Store) queries() *gfs.CollectionRef {
	return s.db.Collection(queriesNode)
}

func (s *Store) recommendations() *gfs.CollectionRef {
	return s.db.Collection(recommendationsNode)
}

func toQuery(doc *gfs.DocumentSnapshot) (models.Query, error) {
	var q models.Query
	if err := doc.DataTo(&q); err != nil {
		return q, fmt.Errorf("decode query %s: %w", doc.Ref.ID, err)
	}
	q.ID = doc.Ref.ID
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return q, nil
}

func toRecommendation(doc *gfs.DocumentSnapshot) (models.Recommendation, error) {
	var r models.Recommendation
	if err := doc.DataTo(&r); err != nil {
		return r, fmt.Errorf("decode recommendation %s: %w", doc.Ref.ID, err)
	}
	r.ID = doc.Ref.ID
	r.Normalize()
	return r, nil
}

func (s *Store) GetQuery(ctx context.Context, id string) (q *models.Query, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "get_query", start, err) }(time.Now())

	doc, err := s.db.GetDoc(ctx, s.queries().Doc(id))
	if err != nil {
		return nil, fmt.Errorf("get query %s: %w", id, err)
	}
	out, err := toQuery(doc)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) listRecommendations(ctx context.Context, q gfs.Query) ([]models.Recommendation, error) {
	out := []models.Recommendation{}
	err := s.db.Docs(ctx, q, func(doc *gfs.DocumentSnapshot) error {
		r, err := toRecommendation(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable recommendation", "id", doc.Ref.ID, "err", err)
			return nil
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b models.Recommendation) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) ListRecommendations(ctx context.Context, queryID string) (recs []models.Recommendation, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "list_recommendations", start, err) }(time.Now())
	return s.listRecommendations(ctx, s.recommendations().Where(QueryIDFieldPath, "==", queryID))
}

func (s *Store) ListByRecommender(ctx context.Context, email string) ([]models.Recommendation, error) {
	return s.listRecommendations(ctx, s.recommendations().Where(RecommenderEmailFieldPath, "==", email))
}

// CreateRecommendation writes the document and increments the query counter
// in one transaction.
func (s *Store) CreateRecommendation(ctx context.Context, rec *models.Recommendation) (out *models.Recommendation, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "create_recommendation", start, err) }(time.Now())
	if rec == nil {
		return nil, fmt.Errorf("recommendation is nil")
	}

	c := rec.Clone()
	c.VotedBy = []string{}
	c.HelpfulCount = 0
	c.IsAccepted = false
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	queryRef := s.queries().Doc(c.QueryID)
	docRef := s.recommendations().NewDoc()

	err = s.db.RunTx(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		snap, err := tx.Get(queryRef)
		if err != nil {
			return mapErr(err)
		}
		if c.QueryTitle == "" {
			if t, err := snap.DataAt(TitleFieldPath); err == nil {
				c.QueryTitle, _ = t.(string)
			}
		}
		if err := tx.Create(docRef, c); err != nil {
			return err
		}
		return tx.Update(queryRef, []gfs.Update{{Path: RecommendationCountFieldPath, Value: gfs.Increment(1)}})
	})
	if err != nil {
		return nil, fmt.Errorf("create recommendation: %w", err)
	}
	c.ID = docRef.ID
	return &c, nil
}

// VoteHelpful adds the voter once; a repeated vote reports the current count.
func (s *Store) VoteHelpful(ctx context.Context, recommendationID, voterEmail string) (res *models.VoteResult, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "vote_helpful", start, err) }(time.Now())
	if voterEmail == "" {
		return &models.VoteResult{Success: false, Message: "voter email required"}, nil
	}

	ref := s.recommendations().Doc(recommendationID)
	var count int
	err = s.db.RunTx(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapErr(err)
		}
		r, err := toRecommendation(snap)
		if err != nil {
			return err
		}
		if r.HasVoted(voterEmail) {
			count = len(r.VotedBy)
			return nil
		}
		count = len(r.VotedBy) + 1
		return tx.Update(ref, []gfs.Update{
			{Path: VotedByFieldPath, Value: gfs.ArrayUnion(voterEmail)},
			{Path: HelpfulCountFieldPath, Value: count},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("vote helpful %s: %w", recommendationID, err)
	}
	return &models.VoteResult{Success: true, HelpfulCount: &count}, nil
}

// MarkBest accepts the recommendation, clears its siblings and resolves the
// query atomically.
func (s *Store) MarkBest(ctx context.Context, recommendationID, queryID string) (res *models.AcceptResult, err error) {
	defer func(start time.Time) { metrics.ObserveStore(driverName, "mark_best", start, err) }(time.Now())

	ref := s.recommendations().Doc(recommendationID)
	queryRef := s.queries().Doc(queryID)
	err = s.db.RunTx(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapErr(err)
		}
		owner, _ := snap.DataAt(QueryIDFieldPath)
		if owner != queryID {
			return fmt.Errorf("recommendation %s does not belong to query %s: %w", recommendationID, queryID, repository.ErrNotFound)
		}
		// all reads happen before the first write
		siblings, err := tx.Documents(s.recommendations().Where(QueryIDFieldPath, "==", queryID).Where(IsAcceptedFieldPath, "==", true)).GetAll()
		if err != nil {
			return err
		}
		for _, sib := range siblings {
			if sib.Ref.ID == recommendationID {
				continue
			}
			if err := tx.Update(sib.Ref, []gfs.Update{{Path: IsAcceptedFieldPath, Value: false}}); err != nil {
				return err
			}
		}
		if err := tx.Update(ref, []gfs.Update{{Path: IsAcceptedFieldPath, Value: true}}); err != nil {
			return err
		}
		return tx.Update(queryRef, []gfs.Update{{Path: IsResolvedFieldPath, Value: true}})
	})
	if err != nil {
		return nil, fmt.Errorf("mark best %s: %w", recommendationID, err)
	}
	return &models.AcceptResult{Success: true}, nil
}

func (s *Store) CreateQuery(ctx context.Context, q *models.Query) (*models.Query, error) {
	if q == nil {
		return nil, fmt.Errorf("query is nil")
	}
	out := q.Clone()
	out.RecommendationCount = 0
	out.IsResolved = false
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = s.now().UTC()
	}
	docRef := s.queries().NewDoc()
	if err := s.db.SetDoc(ctx, docRef, out); err != nil {
		return nil, fmt.Errorf("create query: %w", err)
	}
	out.ID = docRef.ID
	return &out, nil
}

// UpdateQuery rewrites the editable fields of an existing query.
func (s *Store) UpdateQuery(ctx context.Context, q *models.Query) error {
	if q == nil {
		return fmt.Errorf("query is nil")
	}
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}
	updates := []gfs.Update{
		{Path: TitleFieldPath, Value: q.Title},
		{Path: ProductNameFieldPath, Value: q.ProductName},
		{Path: ProductBrandFieldPath, Value: q.ProductBrand},
		{Path: ProductImageFieldPath, Value: q.ProductImage},
		{Path: ReasonFieldPath, Value: q.Reason},
		{Path: CategoryFieldPath, Value: q.Category},
		{Path: TagsFieldPath, Value: tags},
	}
	if err := s.db.UpdateDoc(ctx, s.queries().Doc(q.ID), updates, gfs.Exists); err != nil {
		return fmt.Errorf("update query %s: %w", q.ID, err)
	}
	return nil
}

// DeleteQuery removes the query and its recommendations in one transaction.
func (s *Store) DeleteQuery(ctx context.Context, id string) error {
	queryRef := s.queries().Doc(id)
	err := s.db.RunTx(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		if _, err := tx.Get(queryRef); err != nil {
			return mapErr(err)
		}
		recs, err := tx.Documents(s.recommendations().Where(QueryIDFieldPath, "==", id)).GetAll()
		if err != nil {
			return err
		}
		if len(recs)+1 > maxTxWrites {
			return fmt.Errorf("query %s has %d recommendations, too many to delete at once", id, len(recs))
		}
		for _, r := range recs {
			if err := tx.Delete(r.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(queryRef)
	})
	if err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListQueries(ctx context.Context, filter models.QueryFilter) ([]models.Query, error) {
	q := s.queries().Query
	if filter.OwnerEmail != "" {
		q = q.Where(OwnerEmailFieldPath, "==", filter.OwnerEmail)
	}
	q = q.OrderBy(CreatedAtFieldPath, gfs.Desc)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	out := []models.Query{}
	err := s.db.Docs(ctx, q, func(doc *gfs.DocumentSnapshot) error {
		qq, err := toQuery(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable query", "id", doc.Ref.ID, "err", err)
			return nil
		}
		out = append(out, qq)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return out, nil
}

// DeleteRecommendation removes the recommendation and decrements the counter.
func (s *Store) DeleteRecommendation(ctx context.Context, id string) error {
	ref := s.recommendations().Doc(id)
	err := s.db.RunTx(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapErr(err)
		}
		queryID, _ := snap.DataAt(QueryIDFieldPath)
		qid, _ := queryID.(string)

		// all reads happen before the first write
		var qref *gfs.DocumentRef
		if qid != "" {
			qref = s.queries().Doc(qid)
			qsnap, err := tx.Get(qref)
			if err != nil {
				// orphaned recommendation; nothing to decrement
				qref = nil
			} else if n, _ := qsnap.DataAt(RecommendationCountFieldPath); !positive(n) {
				qref = nil
			}
		}

		if err := tx.Delete(ref); err != nil {
			return err
		}
		if qref == nil {
			return nil
		}
		return tx.Update(qref, []gfs.Update{{Path: RecommendationCountFieldPath, Value: gfs.Increment(-1)}})
	})
	if err != nil {
		return fmt.Errorf("delete recommendation %s: %w", id, err)
	}
	return nil
}

func positive(v any) bool {
	n, ok := v.(int64)
	return ok && n > 0
}
