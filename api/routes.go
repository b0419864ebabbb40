package api

import (
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garnizeh/recboard/internal/identity"
	"github.com/garnizeh/recboard/internal/session"
	"github.com/garnizeh/recboard/pkg/repository"
)

// Deps are the collaborators of the HTTP surface. Accounts and Issuer are set
// only in the local identity mode; without them the auth routes are absent.
type Deps struct {
	Version   string
	BuildTime string
	Store     repository.Backend
	Verifier  identity.Verifier
	Accounts  repository.AccountRepo
	Issuer    *identity.Local
	Registry  *session.Registry
	// ActionWait bounds synchronous vote and mark-best requests.
	ActionWait time.Duration
}

func SetupRoutes(d Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := NewSystemHandler(d.Store)
	boards := NewBoardsHandler(d.Registry, d.ActionWait)
	queries := NewQueriesHandler(d.Store)
	profiles := NewProfilesHandler(d.Store)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if d.Accounts != nil && d.Issuer != nil {
		authHandler := NewAuthHandler(d.Accounts, d.Issuer)
		r.HandleFunc("/v1/auth/signup", authHandler.Signup).Methods("POST")
		r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")
		r.HandleFunc("/v1/auth/signout", authHandler.Signout).Methods("POST")
	}

	// API v1: the user is optional at the middleware; handlers that act on
	// behalf of someone answer 401 without one.
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(AuthMiddleware(d.Verifier))

	apiV1.HandleFunc("/me", profiles.Me).Methods("GET")
	apiV1.HandleFunc("/me/inbox", profiles.Inbox).Methods("GET")
	apiV1.HandleFunc("/me/recommendations", profiles.MyRecommendations).Methods("GET")
	apiV1.HandleFunc("/users/{email}/profile", profiles.Profile).Methods("GET")
	apiV1.HandleFunc("/recommendations/{id}", profiles.DeleteRecommendation).Methods("DELETE")

	apiV1.HandleFunc("/queries", queries.List).Methods("GET")
	apiV1.HandleFunc("/queries", queries.Create).Methods("POST")
	apiV1.HandleFunc("/queries/{id}", queries.Get).Methods("GET")
	apiV1.HandleFunc("/queries/{id}", queries.Update).Methods("PUT")
	apiV1.HandleFunc("/queries/{id}", queries.Delete).Methods("DELETE")

	apiV1.HandleFunc("/boards", boards.Open).Methods("POST")
	apiV1.HandleFunc("/boards/{id}", boards.Get).Methods("GET")
	apiV1.HandleFunc("/boards/{id}", boards.Close).Methods("DELETE")
	apiV1.HandleFunc("/boards/{id}/reload", boards.Reload).Methods("POST")
	apiV1.HandleFunc("/boards/{id}/recommendations", boards.Submit).Methods("POST")
	apiV1.HandleFunc("/boards/{id}/recommendations/{recId}/helpful", boards.Helpful).Methods("POST")
	apiV1.HandleFunc("/boards/{id}/recommendations/{recId}/best", boards.Best).Methods("POST")

	return r
}
