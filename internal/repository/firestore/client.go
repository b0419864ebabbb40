// Package firestore stores queries and recommendations in Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	gfs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/garnizeh/recboard/pkg/repository"
)

// Client wraps the Firestore client and bounds every call with a timeout.
type Client struct {
	*gfs.Client
	writeTimeout time.Duration
}

func NewClient(client *gfs.Client, writeTimeout time.Duration) Client {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return Client{Client: client, writeTimeout: writeTimeout}
}

func (c Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.writeTimeout)
}

// GetDoc returns the snapshot, mapping a missing document to
// repository.ErrNotFound.
func (c Client) GetDoc(ctx context.Context, docRef *gfs.DocumentRef) (*gfs.DocumentSnapshot, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	snap, err := docRef.Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	if !snap.Exists() {
		return nil, repository.ErrNotFound
	}
	return snap, nil
}

// Docs collects every document matched by q and hands each to fn.
func (c Client) Docs(ctx context.Context, q gfs.Query, fn func(*gfs.DocumentSnapshot) error) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return mapErr(err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

// RunTx runs f in a transaction bounded by the write timeout.
func (c Client) RunTx(ctx context.Context, f func(context.Context, *gfs.Transaction) error) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return mapErr(c.Client.RunTransaction(ctx, f))
}

func (c Client) UpdateDoc(ctx context.Context, docRef *gfs.DocumentRef, updates []gfs.Update, preconds ...gfs.Precondition) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := docRef.Update(ctx, updates, preconds...)
	return mapErr(err)
}

func (c Client) SetDoc(ctx context.Context, docRef *gfs.DocumentRef, data any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := docRef.Set(ctx, data)
	return mapErr(err)
}

// mapErr turns gRPC NotFound into repository.ErrNotFound and keeps the cause.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %v", repository.ErrNotFound, err)
	}
	return err
}
