package identity

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"
)

func (l *Local) SetClock(now func() time.Time) { l.now = now }

type VerifyFunc func(ctx context.Context, idToken string) (*auth.Token, error)

func (f VerifyFunc) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	return f(ctx, idToken)
}

func NewFirebaseWith(v VerifyFunc) *Firebase { return &Firebase{client: v} }
