package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/recboard/pkg/models"
)

const issuer = "recboard"

type claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Local issues and verifies HS256 tokens signed with a shared secret.
type Local struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

var _ Verifier = (*Local)(nil)

func NewLocal(secret string, tokenDuration time.Duration) *Local {
	if tokenDuration <= 0 {
		tokenDuration = time.Hour
	}
	return &Local{secret: []byte(secret), duration: tokenDuration, now: time.Now}
}

// Issue signs a token for u and returns it with its expiry.
func (l *Local) Issue(u *models.User) (string, time.Time, error) {
	if u == nil || u.Email == "" {
		return "", time.Time{}, errors.New("user email required")
	}
	now := l.now()
	exp := now.Add(l.duration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:   u.Email,
		Name:    u.DisplayName,
		Picture: u.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := token.SignedString(l.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

func (l *Local) Verify(_ context.Context, token string) (*models.User, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return l.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(l.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Email == "" {
		return nil, fmt.Errorf("%w: no email claim", ErrInvalidToken)
	}
	return &models.User{Email: c.Email, DisplayName: c.Name, PhotoURL: c.Picture}, nil
}
