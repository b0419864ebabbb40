package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/recboard/internal/identity"
	"github.com/garnizeh/recboard/internal/validation"
	"github.com/garnizeh/recboard/pkg/models"
	"github.com/garnizeh/recboard/pkg/repository"
)

// AuthHandler serves sign-up and sign-in for the local identity mode.
type AuthHandler struct {
	accounts repository.AccountRepo
	issuer   *identity.Local
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(accounts repository.AccountRepo, issuer *identity.Local) *AuthHandler {
	return &AuthHandler{accounts: accounts, issuer: issuer}
}

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	PhotoURL string `json:"photoURL,omitempty" validate:"omitempty,url"`
}

type signinRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		writeErr(w, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error hashing password")
		return
	}

	acct := &models.Account{
		Email:        req.Email,
		DisplayName:  req.Name,
		PhotoURL:     req.PhotoURL,
		PasswordHash: string(hash),
		Created:      time.Now().UTC(),
	}
	if _, err := h.accounts.CreateAccount(r.Context(), acct); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			writeErr(w, fmt.Errorf("email %w", err))
			return
		}
		logger.Error("create account", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Error creating user")
		return
	}

	h.respondToken(w, http.StatusCreated, acct.User())
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeErr(w, err)
		return
	}

	acct, err := h.accounts.GetAccountByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil || acct == nil {
		writeError(w, http.StatusUnauthorized, "Credentials not found")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Credentials not found")
		return
	}

	h.respondToken(w, http.StatusOK, acct.User())
}

func (h *AuthHandler) respondToken(w http.ResponseWriter, status int, u *models.User) {
	token, exp, err := h.issuer.Issue(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error signing token")
		return
	}
	writeJSON(w, status, authResponse{Token: token, ExpiresAt: exp, User: u})
}

func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	// For stateless JWT, signout is client-side (just delete token)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"message":"signed out"}`)
}

