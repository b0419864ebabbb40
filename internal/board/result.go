package board

import (
	"context"
	"sync"
)

// Action names a board operation in results, notices and metrics.
type Action string

const (
	ActionLoad     Action = "load"
	ActionSubmit   Action = "submit"
	ActionVote     Action = "vote"
	ActionMarkBest Action = "mark_best"
)

// Outcome is how an optimistic action ended.
type Outcome int

const (
	// OutcomeSaved: the store confirmed the change; the optimistic state is final.
	OutcomeSaved Outcome = iota + 1
	// OutcomeRolledBack: the store call failed and the local change was reverted.
	OutcomeRolledBack
	// OutcomeAbandoned: the board was closed before the store answered.
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeRolledBack:
		return "rolled_back"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "pending"
	}
}

// Result is the settled state of an optimistic action. Err is non-nil only
// for OutcomeRolledBack and always matches ErrNetworkFailure.
type Result struct {
	Action           Action
	RecommendationID string
	Outcome          Outcome
	Err              error
	// ServerHelpfulCount is the count reported by the store after a vote, if any.
	ServerHelpfulCount *int
}

// Pending is the handle of an action whose store call is still running.
type Pending struct {
	done   chan struct{}
	once   sync.Once
	result Result
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func settled(r Result) *Pending {
	p := newPending()
	p.resolve(r)
	return p
}

func (p *Pending) resolve(r Result) {
	p.once.Do(func() {
		p.result = r
		close(p.done)
	})
}

// Done is closed once the result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the action settles or ctx ends. A ctx error does not
// cancel the action; reconciliation continues in the background.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the result without blocking; ok is false while pending.
func (p *Pending) Result() (Result, bool) {
	select {
	case <-p.done:
		return p.result, true
	default:
		return Result{}, false
	}
}
