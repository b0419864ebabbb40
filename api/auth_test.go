package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	dbfs "github.com/garnizeh/recboard/db"
	"github.com/garnizeh/recboard/api"
	"github.com/garnizeh/recboard/internal/db"
	"github.com/garnizeh/recboard/internal/identity"
	"github.com/garnizeh/recboard/internal/repository/sqlite"
	"github.com/garnizeh/recboard/pkg/models"
)

func setupAccounts(t *testing.T) *sqlite.SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Migrate(ctx, d, dbfs.Migrations, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlite.New(d, nil)
}

func TestAuthHandlers(t *testing.T) {
	secret := "testsecret"
	tokenDur := 1 * time.Hour

	tests := []struct {
		name       string
		path       string
		body       any
		prepare    func(t *testing.T, repo *sqlite.SQLiteRepo)
		wantStatus int
		wantEmail  string
	}{
		{
			name:       "Signup_InvalidRequest",
			path:       "/signup",
			body:       "not a json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_MissingFields_Name",
			path:       "/signup",
			body:       map[string]string{"email": "alice@example.com", "password": "s3cret"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_BadEmail",
			path:       "/signup",
			body:       map[string]string{"name": "Alice", "email": "alice", "password": "s3cret"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_ShortPassword",
			path:       "/signup",
			body:       map[string]string{"name": "Alice", "email": "alice@example.com", "password": "pw"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_Success",
			path:       "/signup",
			body:       map[string]string{"name": "Alice", "email": "alice@example.com", "password": "s3cret"},
			wantStatus: http.StatusCreated,
			wantEmail:  "alice@example.com",
		},
		{
			name: "Signup_DuplicateEmail",
			path: "/signup",
			body: map[string]string{"name": "Dup", "email": "dup@example.com", "password": "s3cret"},
			prepare: func(t *testing.T, repo *sqlite.SQLiteRepo) {
				if _, err := repo.CreateAccount(context.Background(), &models.Account{Email: "dup@example.com", DisplayName: "Dup", PasswordHash: "x"}); err != nil {
					t.Fatalf("seed account: %v", err)
				}
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Signin_InvalidRequest",
			path:       "/signin",
			body:       "not a json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signin_MissingFields_Password",
			path:       "/signin",
			body:       map[string]string{"email": "missing@example.com"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signin_MissingUser",
			path:       "/signin",
			body:       map[string]string{"email": "missing@example.com", "password": "nop"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Signin_Success",
			path: "/signin",
			body: map[string]string{"email": "bob@example.com", "password": "hunter2"},
			prepare: func(t *testing.T, repo *sqlite.SQLiteRepo) {
				hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
				if _, err := repo.CreateAccount(context.Background(), &models.Account{Email: "bob@example.com", DisplayName: "Bob", PasswordHash: string(hash)}); err != nil {
					t.Fatalf("seed account: %v", err)
				}
			},
			wantStatus: http.StatusOK,
			wantEmail:  "bob@example.com",
		},
		{
			name: "Signin_WrongPassword",
			path: "/signin",
			body: map[string]string{"email": "c@example.com", "password": "wrongpw"},
			prepare: func(t *testing.T, repo *sqlite.SQLiteRepo) {
				hash, _ := bcrypt.GenerateFromPassword([]byte("rightpw"), bcrypt.MinCost)
				if _, err := repo.CreateAccount(context.Background(), &models.Account{Email: "c@example.com", DisplayName: "C", PasswordHash: string(hash)}); err != nil {
					t.Fatalf("seed account: %v", err)
				}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Signout_OK",
			path:       "/signout",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := setupAccounts(t)
			if tt.prepare != nil {
				tt.prepare(t, repo)
			}
			issuer := identity.NewLocal(secret, tokenDur)
			handler := api.NewAuthHandler(repo, issuer)

			var bodyReader io.Reader
			switch b := tt.body.(type) {
			case nil:
			case string:
				bodyReader = bytes.NewBufferString(b)
			default:
				data, _ := json.Marshal(b)
				bodyReader = bytes.NewReader(data)
			}
			req := httptest.NewRequest(http.MethodPost, tt.path, bodyReader)
			w := httptest.NewRecorder()

			switch tt.path {
			case "/signup":
				handler.Signup(w, req)
			case "/signin":
				handler.Signin(w, req)
			case "/signout":
				handler.Signout(w, req)
			default:
				t.Fatalf("unknown path %s", tt.path)
			}

			res := w.Result()
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("%s: expected status %d got %d body=%s", tt.name, tt.wantStatus, res.StatusCode, string(data))
			}
			if tt.path == "/signout" && !bytes.Contains(data, []byte("signed out")) {
				t.Fatalf("unexpected body: %s", string(data))
			}
			if tt.wantEmail == "" {
				return
			}

			var ar struct {
				Token     string       `json:"token"`
				ExpiresAt time.Time    `json:"expiresAt"`
				User      *models.User `json:"user"`
			}
			if err := json.Unmarshal(data, &ar); err != nil {
				t.Fatalf("unmarshal token: %v", err)
			}
			if ar.Token == "" || !ar.ExpiresAt.After(time.Now()) {
				t.Fatalf("bad token response: %s", string(data))
			}
			u, err := issuer.Verify(context.Background(), ar.Token)
			if err != nil {
				t.Fatalf("invalid token: %v", err)
			}
			if u.Email != tt.wantEmail || ar.User.Email != tt.wantEmail {
				t.Fatalf("token for %q, want %q", u.Email, tt.wantEmail)
			}
		})
	}
}

func TestAuthRoutes_OnlyInLocalMode(t *testing.T) {
	e := newEnv(t)
	expectStatus(t, e.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "a", "password": "b"}), http.StatusNotFound)
}
