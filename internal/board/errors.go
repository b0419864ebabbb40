package board

import (
	"errors"
	"fmt"

	"github.com/garnizeh/recboard/pkg/repository"
)

var (
	// ErrUnauthorized means the action needs a signed-in user and none was given.
	ErrUnauthorized = errors.New("sign in required")
	// ErrForbidden means the user may not perform the action (mark best by a
	// non-owner).
	ErrForbidden = errors.New("only the query owner can mark the best recommendation")
	// ErrAlreadyVoted is an informational rejection of a duplicate vote.
	ErrAlreadyVoted = errors.New("already voted helpful")
	// ErrNetworkFailure wraps any failed store call; the action may be retried.
	ErrNetworkFailure = errors.New("could not be saved, retry")
	// ErrNotFound means the query does not exist.
	ErrNotFound = errors.New("query not found")
	// ErrUnknownRecommendation means the id is not on this board.
	ErrUnknownRecommendation = errors.New("recommendation not on this board")
	// ErrInvalidInput wraps a validation failure of submitted fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed is returned by actions on a board that was closed.
	ErrClosed = errors.New("board closed")
)

// storeError classifies an error coming from the store.
func storeError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
}
