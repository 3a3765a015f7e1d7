// Package policy decides which task the scheduler attempts next.
//
// A task whose backoff window has elapsed is eligible. Eligible tasks are
// ordered oldest-attempt-first; tasks still inside their window sort after
// every eligible task, ordered by when they become ready. Nothing is ever
// excluded permanently.
package policy

import (
	"math"
	"time"

	"github.com/Pojie/pojie-go/internal/attempt"
	"github.com/Pojie/pojie-go/internal/store"
)

// MaxWait is the longest backoff WaitTime returns.
const MaxWait = time.Duration(math.MaxInt64)

// WaitTime is the delay imposed before attempting a task whose current
// candidate has already failed retry times.
func WaitTime(retry int, cfg attempt.Config) time.Duration {
	if retry <= 0 {
		return 0
	}
	if cfg.BackoffBase <= 0 {
		return cfg.RetryDelay
	}
	shift := retry - 1
	if shift >= 63 || cfg.BackoffBase > MaxWait>>shift {
		return MaxWait
	}
	return cfg.BackoffBase << shift
}

// ReadyAt is the earliest time t may be attempted again.
func ReadyAt(t store.Task, cfg attempt.Config) time.Time {
	if t.LastAttempt.IsZero() {
		return time.Time{}
	}
	return t.LastAttempt.Add(WaitTime(t.Retry, cfg))
}

// Score orders tasks; lower is selected first.
type Score struct {
	Deferred bool
	At       time.Time
	Target   string
}

// Less reports whether s sorts before o.
func (s Score) Less(o Score) bool {
	if s.Deferred != o.Deferred {
		return !s.Deferred
	}
	if !s.At.Equal(o.At) {
		return s.At.Before(o.At)
	}
	return s.Target < o.Target
}

// Priority scores t at now.
func Priority(t store.Task, cfg attempt.Config, now time.Time) Score {
	ready := ReadyAt(t, cfg)
	if now.Before(ready) {
		return Score{Deferred: true, At: ready, Target: t.Target}
	}
	return Score{At: t.LastAttempt, Target: t.Target}
}

// Eligible reports whether t may be attempted at now.
func Eligible(t store.Task, cfg attempt.Config, now time.Time) bool {
	return t.Status == store.Waiting && !t.Exhausted() && !now.Before(ReadyAt(t, cfg))
}

// Select returns the best eligible task. When none is eligible ok is false and
// next is the earliest time a waiting task becomes ready (zero if there is no
// waiting task at all).
func Select(tasks []store.Task, cfg attempt.Config, now time.Time) (best store.Task, ok bool, next time.Time) {
	var bestScore Score
	for _, t := range tasks {
		if t.Status != store.Waiting || t.Exhausted() {
			continue
		}
		sc := Priority(t, cfg, now)
		if sc.Deferred {
			if next.IsZero() || sc.At.Before(next) {
				next = sc.At
			}
			continue
		}
		if !ok || sc.Less(bestScore) {
			best, bestScore, ok = t, sc, true
		}
	}
	if ok {
		next = time.Time{}
	}
	return best, ok, next
}
