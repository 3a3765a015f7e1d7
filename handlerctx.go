package pojie

import (
	"context"
	"time"

	"github.com/Pojie/pojie-go/internal/hctx"
)

// AttemptInfo describes the attempt a Connector call belongs to.
type AttemptInfo struct {
	ID         string
	Target     string
	Credential string
	Start      time.Time
}

// AttemptFrom returns the attempt carried by a context passed to
// Connector.Begin. ok is false outside the engine.
func AttemptFrom(ctx context.Context) (AttemptInfo, bool) {
	st, ok := hctx.From(ctx)
	if !ok || st == nil {
		return AttemptInfo{}, false
	}
	return AttemptInfo{ID: st.ID, Target: st.Target, Credential: st.Credential, Start: st.Start}, true
}

// SetTip replaces the progress tip of the current target.
// It is a no-op if the context is not provided by the engine.
func SetTip(ctx context.Context, tip string) {
	st, ok := hctx.From(ctx)
	if !ok {
		return
	}
	st.SetTip(tip)
}

// ReportOutcome lets a connector that learns the result synchronously resolve
// the attempt without waiting for an event source. It reports whether this
// call decided the outcome; it is false when something else already did, the
// context is not provided by the engine, or o is OutcomeCancelled or unknown.
func ReportOutcome(ctx context.Context, o Outcome, reason string) bool {
	st, ok := hctx.From(ctx)
	if !ok {
		return false
	}
	return st.Report(o, reason)
}
