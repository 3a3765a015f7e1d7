package pojie

import (
	"context"
	"time"

	"github.com/Pojie/pojie-go/internal/store"
)

// Client submits targets to an Engine and inspects their progress.
type Client struct {
	store *store.Store
	kick  func()
	log   Logger
}

// Submit adds a target with its ordered candidate list and wakes the engine.
// It returns ErrDuplicateTarget if the target is already present; the existing
// task is left untouched.
func (c *Client) Submit(target string, candidates []string, opts ...Option) error {
	if target == "" {
		return ErrEmptyTarget
	}
	if len(candidates) == 0 {
		return ErrEmptyCandidates
	}
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.cursor < 0 || cfg.cursor >= len(candidates) {
		return ErrInvalidCursor
	}
	tip := cfg.tip
	if tip == "" {
		tip = "queued"
	}

	t := store.Task{
		Target:     target,
		Candidates: append([]string(nil), candidates...),
		Cursor:     cfg.cursor,
		Status:     store.Waiting,
		Tip:        tip,
		CreatedAt:  time.Now(),
	}
	if err := c.store.Insert(t); err != nil {
		return err
	}
	c.log.Infof("target submitted: target=%s candidates=%d cursor=%d", target, len(candidates), cfg.cursor)
	c.kick()
	return nil
}

// CancelTarget removes a target, interrupting its attempt if one is in
// flight. It reports whether the target existed.
func (c *Client) CancelTarget(target string) bool {
	var cursor int
	found := c.store.Update(target, func(t *store.Task) {
		t.Status = store.Cancelled
		t.Tip = "cancelling"
		cursor = t.Cursor
	})
	if !found || !c.store.Remove(target) {
		return false
	}
	c.store.SetResult(store.Result{
		Target:  target,
		Tip:     "cancelled",
		Outcome: OutcomeCancelled,
		Cursor:  cursor,
		At:      time.Now(),
	})
	c.log.Infof("target cancelled: target=%s cursor=%d", target, cursor)
	return true
}

// CancelAll cancels every target and returns how many were removed.
func (c *Client) CancelAll() int {
	n := 0
	for _, t := range c.store.List() {
		if c.CancelTarget(t.Target) {
			n++
		}
	}
	return n
}

// Get returns the progress of one target.
func (c *Client) Get(target string) (Progress, bool) {
	t, ok := c.store.Get(target)
	if !ok {
		return Progress{}, false
	}
	return progressFrom(t), true
}

// ListProgress returns a snapshot of every target ordered by name.
func (c *Client) ListProgress() []Progress {
	return progressList(c.store.List())
}

// Results returns the final records of targets that left the engine.
func (c *Client) Results() []Result {
	rs := c.store.Results()
	out := make([]Result, 0, len(rs))
	for _, r := range rs {
		out = append(out, resultFrom(r))
	}
	return out
}

// Watch streams progress snapshots, starting with the current one. A slow
// reader skips intermediate snapshots. The channel closes when ctx is done.
func (c *Client) Watch(ctx context.Context) <-chan []Progress {
	changes := c.store.Changes(ctx)
	out := make(chan []Progress, 1)
	go func() {
		defer close(out)
		for snap := range changes {
			select {
			case out <- progressList(snap.Tasks):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
