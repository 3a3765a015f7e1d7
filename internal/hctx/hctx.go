package hctx

import (
	"context"
	"time"

	"github.com/Pojie/pojie-go/internal/attempt"
)

// State describes the attempt a connector call belongs to. The runtime fills
// the callbacks; connectors reach them through the root package helpers.
type State struct {
	ID         string
	Target     string
	Credential string
	Start      time.Time

	OnTip   func(tip string)
	Resolve func(o attempt.Outcome, reason string) bool
}

// New creates a state container for one attempt.
func New(id, target, credential string, start time.Time) *State {
	return &State{ID: id, Target: target, Credential: credential, Start: start}
}

// SetTip forwards an advisory activity string to the task, if wired.
func (s *State) SetTip(tip string) {
	if s == nil || s.OnTip == nil {
		return
	}
	s.OnTip(tip)
}

// Report resolves the attempt early. It reports false when the attempt was
// already resolved, no resolver is wired, or o is not an outcome a connector
// may decide. Cancelled belongs to the scheduler.
func (s *State) Report(o attempt.Outcome, reason string) bool {
	if s == nil || s.Resolve == nil {
		return false
	}
	switch o {
	case attempt.Success, attempt.CredentialRejected, attempt.Timeout, attempt.Error:
	default:
		return false
	}
	return s.Resolve(o, reason)
}

type ctxKey struct{}

// WithState returns a child context carrying the given attempt state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the attempt state from context if present.
func From(ctx context.Context) (*State, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State)
	return st, ok
}
