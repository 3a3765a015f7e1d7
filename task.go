package pojie

import (
	"time"

	"github.com/Pojie/pojie-go/internal/store"
)

// Progress is a read-only snapshot of one target under attack.
type Progress struct {
	// Target identifies the network.
	Target string `json:"target"`
	// Cursor is the index of the next candidate to try.
	Cursor int `json:"cursor"`
	// Total is the number of candidates.
	Total int `json:"total"`
	// Retry counts attempts on the current candidate since it last advanced.
	Retry int `json:"retry"`
	// Status is the scheduling state.
	Status Status `json:"status"`
	// Tip is a human-readable description of the latest activity.
	Tip string `json:"tip,omitempty"`
	// Attempts is the total number of attempts made for the target.
	Attempts int `json:"attempts"`
	// LastAttempt is when the most recent attempt started.
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	// CreatedAt is when the target was submitted.
	CreatedAt time.Time `json:"created_at"`
}

// Result is the final record of a target that left the engine.
type Result struct {
	Target string `json:"target"`
	Tip    string `json:"tip"`
	// Credential is set when a candidate connected.
	Credential string    `json:"credential,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Cursor     int       `json:"cursor"`
	At         time.Time `json:"at"`
}

func progressFrom(t store.Task) Progress {
	return Progress{
		Target:      t.Target,
		Cursor:      t.Cursor,
		Total:       len(t.Candidates),
		Retry:       t.Retry,
		Status:      t.Status,
		Tip:         t.Tip,
		Attempts:    t.Attempts,
		LastAttempt: t.LastAttempt,
		CreatedAt:   t.CreatedAt,
	}
}

func progressList(tasks []store.Task) []Progress {
	out := make([]Progress, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, progressFrom(t))
	}
	return out
}

func resultFrom(r store.Result) Result {
	return Result{
		Target:     r.Target,
		Tip:        r.Tip,
		Credential: r.Credential,
		Outcome:    r.Outcome,
		Cursor:     r.Cursor,
		At:         r.At,
	}
}
