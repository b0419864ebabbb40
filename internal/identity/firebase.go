package identity

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/garnizeh/recboard/pkg/models"
)

// NewFirebaseApp creates the Firebase app shared by the identity verifier and
// the Firestore store. An empty credentialsFile uses application default
// credentials.
func NewFirebaseApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	return app, nil
}

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Firebase verifies Firebase ID tokens.
type Firebase struct {
	client idTokenVerifier
}

var _ Verifier = (*Firebase)(nil)

// NewFirebase returns a verifier backed by the app's auth client.
func NewFirebase(ctx context.Context, app *firebase.App) (*Firebase, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &Firebase{client: client}, nil
}

func (f *Firebase) Verify(ctx context.Context, token string) (*models.User, error) {
	t, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	email, _ := t.Claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: token for %s carries no email", ErrInvalidToken, t.UID)
	}
	name, _ := t.Claims["name"].(string)
	picture, _ := t.Claims["picture"].(string)
	return &models.User{Email: email, DisplayName: name, PhotoURL: picture}, nil
}
