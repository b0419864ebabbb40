package firestore

import "time"

const (
	// collection names
	queriesNode         string = "queries"
	recommendationsNode string = "recommendations"

	// Fields' name and path
	TitleFieldPath               string = "title"
	ProductNameFieldPath         string = "productName"
	ProductBrandFieldPath        string = "productBrand"
	ProductImageFieldPath        string = "productImage"
	ReasonFieldPath              string = "reason"
	CategoryFieldPath            string = "category"
	TagsFieldPath                string = "tags"
	OwnerEmailFieldPath          string = "ownerEmail"
	RecommendationCountFieldPath string = "recommendationCount"
	IsResolvedFieldPath          string = "isResolved"
	CreatedAtFieldPath           string = "createdAt"
	QueryIDFieldPath             string = "queryId"
	QueryTitleFieldPath          string = "queryTitle"
	RecommenderEmailFieldPath    string = "recommenderEmail"
	HelpfulCountFieldPath        string = "helpfulCount"
	VotedByFieldPath             string = "votedBy"
	IsAcceptedFieldPath          string = "isAccepted"

	defaultWriteTimeout time.Duration = time.Second * 30

	// Firestore caps a transaction at 500 writes; a query with more
	// recommendations than this cannot be deleted in one go.
	maxTxWrites = 500
)
