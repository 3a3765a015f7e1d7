// Package store keeps the shared, observable collection of attack tasks.
// All operations are safe for concurrent use; the store does not offer
// check-and-act across several tasks.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Pojie/pojie-go/internal/attempt"
)

// ErrDuplicate is returned by Insert when the target is already present.
var ErrDuplicate = errors.New("pojie: duplicate target")

// Status of a task inside the store. Finished tasks are removed instead of
// carrying a terminal status.
type Status string

const (
	Waiting   Status = "waiting"
	Running   Status = "running"
	Cancelled Status = "cancelled"
)

// Task is one target under attack.
type Task struct {
	Target      string
	Candidates  []string
	Cursor      int
	Retry       int
	Status      Status
	LastAttempt time.Time
	Tip         string
	CreatedAt   time.Time
	Attempts    int
	// Found is the credential that produced a success, if any.
	Found string
}

// Current returns the candidate under the cursor.
func (t Task) Current() (string, bool) {
	if t.Cursor < 0 || t.Cursor >= len(t.Candidates) {
		return "", false
	}
	return t.Candidates[t.Cursor], true
}

// Exhausted reports whether every candidate has been tried.
func (t Task) Exhausted() bool { return t.Cursor >= len(t.Candidates) }

// Result is the final record of a removed task.
type Result struct {
	Target     string
	Tip        string
	Credential string
	Outcome    attempt.Outcome
	Cursor     int
	At         time.Time
}

// Snapshot is an immutable copy of the store at one version.
type Snapshot struct {
	Version uint64
	Tasks   []Task
}

// Has reports whether the snapshot contains target.
func (s Snapshot) Has(target string) bool {
	_, ok := s.Get(target)
	return ok
}

// Get returns the task for target from the snapshot.
func (s Snapshot) Get(target string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.Target == target {
			return t, true
		}
	}
	return Task{}, false
}

type subscriber struct {
	ch chan Snapshot
}

// Store is a mutex-guarded map of tasks with change notification.
type Store struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	results map[string]Result
	version uint64
	subs    map[*subscriber]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tasks:   make(map[string]*Task),
		results: make(map[string]Result),
		subs:    make(map[*subscriber]struct{}),
	}
}

// Insert adds a task. It returns ErrDuplicate if the target exists and leaves
// the existing task untouched. A previous Result for the target is cleared.
func (s *Store) Insert(t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.Target]; ok {
		return ErrDuplicate
	}
	if t.Status == "" {
		t.Status = Waiting
	}
	cp := t
	s.tasks[t.Target] = &cp
	delete(s.results, t.Target)
	s.changedLocked()
	return nil
}

// Update applies fn to the task in place. Absent targets are a no-op and
// report false; the task may have been removed concurrently.
func (s *Store) Update(target string, fn func(*Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[target]
	if !ok {
		return false
	}
	fn(t)
	s.changedLocked()
	return true
}

// UpdateOrRemove applies fn and removes the task when fn returns true, in one
// step, so no snapshot ever shows the intermediate state.
func (s *Store) UpdateOrRemove(target string, fn func(*Task) bool) (removed, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[target]
	if !ok {
		return false, false
	}
	if fn(t) {
		delete(s.tasks, target)
		removed = true
	}
	s.changedLocked()
	return removed, true
}

// Remove deletes the task for target and reports whether it existed.
func (s *Store) Remove(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[target]; !ok {
		return false
	}
	delete(s.tasks, target)
	s.changedLocked()
	return true
}

// RemoveAll deletes every task and returns how many were removed.
func (s *Store) RemoveAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tasks)
	if n == 0 {
		return 0
	}
	s.tasks = make(map[string]*Task)
	s.changedLocked()
	return n
}

// Get returns a copy of the task for target.
func (s *Store) Get(target string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[target]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns copies of all tasks ordered by target.
func (s *Store) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

// Len reports the number of tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// SetResult records the final result of a target.
func (s *Store) SetResult(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.Target] = r
	s.changedLocked()
}

// SetResultIfAbsent records r unless a result for the target already exists.
func (s *Store) SetResultIfAbsent(r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.Target]; ok {
		return false
	}
	s.results[r.Target] = r
	s.changedLocked()
	return true
}

// Result returns the recorded result for target.
func (s *Store) Result(target string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[target]
	return r, ok
}

// Results returns all recorded results ordered by target.
func (s *Store) Results() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Version returns the current change counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Version: s.version, Tasks: s.listLocked()}
}

// Changes returns a stream of snapshots for one subscriber. The first value is
// the current snapshot; afterwards every mutation produces a new one. A slow
// reader only ever sees the latest snapshot. The channel is closed when ctx is
// done.
func (s *Store) Changes(ctx context.Context) <-chan Snapshot {
	sub := &subscriber{ch: make(chan Snapshot, 1)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.ch <- Snapshot{Version: s.version, Tasks: s.listLocked()}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, sub)
		close(sub.ch)
		s.mu.Unlock()
	}()
	return sub.ch
}

func (s *Store) listLocked() []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// changedLocked bumps the version and pushes the new snapshot to every
// subscriber, replacing an unread older one.
func (s *Store) changedLocked() {
	s.version++
	if len(s.subs) == 0 {
		return
	}
	snap := Snapshot{Version: s.version, Tasks: s.listLocked()}
	for sub := range s.subs {
		select {
		case sub.ch <- snap:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}
