package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Pojie/pojie-go/internal/attempt"
	"github.com/Pojie/pojie-go/internal/hctx"
	"github.com/Pojie/pojie-go/internal/monitor"
	"github.com/Pojie/pojie-go/internal/policy"
	"github.com/Pojie/pojie-go/internal/store"
	"github.com/google/uuid"
)

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

type Config struct {
	// Attempt is read once per attempt; nil means attempt.DefaultConfig.
	Attempt func() attempt.Config
	Logger  Logger
}

// run is one activation of the scheduler, from Start or Kick until halt or Stop.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// current is the attempt the watcher may interrupt.
type current struct {
	target     string
	minVersion uint64
	cancel     context.CancelFunc
}

// Runtime owns the single scheduler goroutine and the store watcher.
type Runtime struct {
	store *store.Store
	mon   *monitor.Monitor
	conn  attempt.Connector
	cfg   Config
	log   Logger

	mu      sync.Mutex
	enabled bool
	run     *run

	wake chan struct{}

	curMu sync.Mutex
	cur   *current
}

// New creates a runtime. Nothing runs until Start.
func New(st *store.Store, mon *monitor.Monitor, conn attempt.Connector, cfg Config) *Runtime {
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	return &Runtime{
		store: st,
		mon:   mon,
		conn:  conn,
		cfg:   cfg,
		log:   lg,
		wake:  make(chan struct{}, 1),
	}
}

// Start enables the runtime and launches the scheduler. With an empty store
// the scheduler halts at once and waits for Kick.
func (rt *Runtime) Start() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.enabled {
		rt.log.Warnf("runtime already started; ignoring Start()")
		return
	}
	rt.enabled = true
	rt.log.Infof("runtime starting: tasks=%d", rt.store.Len())
	rt.startLocked()
}

// Stop disables the runtime, interrupts the in-flight attempt and waits for
// the scheduler and watcher to exit.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if !rt.enabled {
		rt.log.Warnf("runtime not started; ignoring Stop()")
		rt.mu.Unlock()
		return
	}
	rt.enabled = false
	r := rt.run
	rt.run = nil
	rt.mu.Unlock()
	if r != nil {
		r.cancel()
		<-r.done
	}
	rt.log.Infof("runtime stopped")
}

// Kick wakes an idle scheduler and restarts a halted one.
func (rt *Runtime) Kick() {
	rt.signal()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.enabled && rt.run == nil {
		rt.startLocked()
	}
}

// Running reports whether a scheduler goroutine is active.
func (rt *Runtime) Running() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.run != nil
}

// Enabled reports whether Start was called without a matching Stop.
func (rt *Runtime) Enabled() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.enabled
}

// Done returns a channel closed when the current run ends. It is already
// closed when nothing runs.
func (rt *Runtime) Done() <-chan struct{} {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return rt.run.done
}

// Current returns the target of the in-flight attempt.
func (rt *Runtime) Current() (string, bool) {
	rt.curMu.Lock()
	defer rt.curMu.Unlock()
	if rt.cur == nil {
		return "", false
	}
	return rt.cur.target, true
}

func (rt *Runtime) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	rt.run = r
	changes := rt.store.Changes(ctx)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		rt.watch(changes)
	}()
	go func() {
		defer r.wg.Done()
		defer cancel()
		rt.loop(r)
	}()
	go func() {
		r.wg.Wait()
		close(r.done)
	}()
}

func (rt *Runtime) signal() {
	select {
	case rt.wake <- struct{}{}:
	default:
	}
}

func (rt *Runtime) drainWake() {
	select {
	case <-rt.wake:
	default:
	}
}

func (rt *Runtime) attemptConfig() attempt.Config {
	if rt.cfg.Attempt == nil {
		return attempt.DefaultConfig()
	}
	return rt.cfg.Attempt().WithDefaults()
}

// haltIfEmpty ends the run when the store is empty. It holds rt.mu so a
// concurrent Kick either sees this run still active, after its task is
// already visible to Len, or sees no run and starts a new one.
func (rt *Runtime) haltIfEmpty(r *run) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.store.Len() > 0 {
		return false
	}
	if rt.run == r {
		rt.run = nil
	}
	return true
}

func (rt *Runtime) loop(r *run) {
	for {
		if r.ctx.Err() != nil {
			return
		}
		if rt.haltIfEmpty(r) {
			rt.log.Infof("no tasks left; scheduler halted")
			return
		}
		cfg := rt.attemptConfig()
		rt.drainWake()
		now := time.Now()
		t, ok, next := policy.Select(rt.store.List(), cfg, now)
		if !ok {
			rt.idle(r, cfg, now, next)
			continue
		}
		rt.attempt(r, t, cfg)
	}
}

func (rt *Runtime) idle(r *run, cfg attempt.Config, now, next time.Time) {
	d := cfg.IdlePoll
	if !next.IsZero() {
		if w := next.Sub(now); w < d {
			d = w
		}
	}
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-r.ctx.Done():
	case <-rt.wake:
	case <-timer.C:
	}
}

type begun struct {
	h   attempt.Handle
	err error
}

func (rt *Runtime) attempt(r *run, t store.Task, cfg attempt.Config) {
	cred, ok := t.Current()
	if !ok {
		return
	}
	start := time.Now()
	claimed := false
	rt.store.Update(t.Target, func(tk *store.Task) {
		if tk.Status != store.Waiting || tk.Cursor != t.Cursor {
			return
		}
		claimed = true
		tk.Status = store.Running
		tk.LastAttempt = start
		tk.Attempts++
		tk.Tip = fmt.Sprintf("trying %s (%d/%d)", cred, tk.Cursor+1, len(tk.Candidates))
	})
	if !claimed {
		return
	}
	rt.log.Debugf("attempt starting: target=%s cursor=%d retry=%d", t.Target, t.Cursor, t.Retry)

	w := rt.mon.Watch(r.ctx, t.Target, start, cfg)
	defer w.Stop()

	actx, acancel := context.WithCancel(r.ctx)
	defer acancel()
	st := hctx.New(uuid.NewString(), t.Target, cred, start)
	var tipMu sync.Mutex
	tipClosed := false
	st.OnTip = func(tip string) {
		tipMu.Lock()
		defer tipMu.Unlock()
		if tipClosed {
			return
		}
		rt.store.Update(t.Target, func(tk *store.Task) { tk.Tip = tip })
	}
	st.Resolve = w.Resolve
	actx = hctx.WithState(actx, st)

	rt.setCurrent(t.Target, acancel)
	defer rt.clearCurrent()
	if _, ok := rt.store.Get(t.Target); !ok {
		acancel()
	}

	results := make(chan begun, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				results <- begun{err: &attempt.DelegationError{Op: "begin", Target: t.Target, Err: fmt.Errorf("panic: %v", p)}}
			}
		}()
		h, err := rt.conn.Begin(actx, t.Target, cred)
		if err != nil {
			err = &attempt.DelegationError{Op: "begin", Target: t.Target, Err: err}
		}
		if h.ID == "" {
			h.ID = st.ID
		}
		if h.Target == "" {
			h.Target, h.Credential = t.Target, cred
		}
		results <- begun{h: h, err: err}
	}()

	timer := time.NewTimer(cfg.MaxAttemptDuration)
	defer timer.Stop()

	var handle *attempt.Handle
	pending := results
wait:
	for {
		select {
		case <-w.Done():
			break wait
		case b := <-pending:
			pending = nil
			if b.err != nil {
				rt.log.Errorf("connector error: target=%s err=%v", t.Target, b.err)
				w.Resolve(attempt.Error, b.err.Error())
				continue
			}
			h := b.h
			handle = &h
		case <-timer.C:
			w.Resolve(attempt.Timeout, fmt.Sprintf("no outcome within %s", cfg.MaxAttemptDuration))
		case <-actx.Done():
			if r.ctx.Err() != nil {
				w.Resolve(attempt.Cancelled, "engine stopped")
			} else {
				w.Resolve(attempt.Cancelled, "task removed")
			}
		}
	}
	acancel()
	tipMu.Lock()
	tipClosed = true
	tipMu.Unlock()

	switch {
	case handle != nil:
		rt.release(*handle, cfg.CancelTimeout)
	case pending != nil:
		go func() {
			if b := <-pending; b.err == nil {
				rt.release(b.h, cfg.CancelTimeout)
			}
		}()
	}

	rt.complete(t.Target, cred, w.Outcome(), w.Reason(), cfg)
}

// release gives the connector a bounded amount of time to tear the attempt
// down. Errors are logged only.
func (rt *Runtime) release(h attempt.Handle, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				errc <- fmt.Errorf("panic: %v", p)
			}
		}()
		errc <- rt.conn.Cancel(ctx, h)
	}()
	select {
	case err := <-errc:
		if err != nil {
			rt.log.Warnf("connector cancel failed: target=%s id=%s err=%v", h.Target, h.ID, err)
		}
	case <-ctx.Done():
		rt.log.Warnf("connector cancel timed out: target=%s id=%s timeout=%s", h.Target, h.ID, timeout)
	}
}

func (rt *Runtime) complete(target, cred string, o attempt.Outcome, reason string, cfg attempt.Config) {
	now := time.Now()
	if o == attempt.Cancelled {
		found := rt.store.Update(target, func(tk *store.Task) {
			if tk.Status == store.Running {
				tk.Status = store.Waiting
			}
			tk.Tip = "interrupted: " + reason
		})
		if !found {
			rt.store.SetResultIfAbsent(store.Result{Target: target, Tip: "interrupted", Outcome: o, At: now})
		}
		rt.log.Infof("attempt cancelled: target=%s reason=%s", target, reason)
		return
	}

	var res store.Result
	var cursor int
	removed, found := rt.store.UpdateOrRemove(target, func(tk *store.Task) bool {
		tk.Retry++
		if tk.Status == store.Running {
			tk.Status = store.Waiting
		}
		if o == attempt.Success {
			tk.Found = cred
			tk.Tip = fmt.Sprintf("connected with %s", cred)
		} else {
			tk.Tip = fmt.Sprintf("%s with %s: %s", o, cred, reason)
		}
		if o == attempt.Success || tk.Retry > cfg.RetryLimit {
			tk.Retry = 0
			if tk.Cursor < len(tk.Candidates) {
				tk.Cursor++
			}
		}
		cursor = tk.Cursor
		remove := tk.Exhausted() || (o == attempt.Success && cfg.StopOnSuccess)
		if remove {
			res = store.Result{Target: tk.Target, Credential: tk.Found, Outcome: o, Cursor: tk.Cursor, At: now}
			if tk.Found != "" {
				res.Tip = fmt.Sprintf("credential found: %s", tk.Found)
				res.Outcome = attempt.Success
			} else {
				res.Tip = fmt.Sprintf("all %d candidates failed", len(tk.Candidates))
			}
		}
		return remove
	})
	if !found {
		rt.log.Debugf("task gone before completion: target=%s outcome=%s", target, o)
		return
	}
	rt.log.Infof("attempt finished: target=%s cursor=%d outcome=%s reason=%s", target, cursor, o, reason)
	if removed {
		rt.store.SetResult(res)
		rt.log.Infof("task finished: target=%s result=%q", target, res.Tip)
	}
}

func (rt *Runtime) setCurrent(target string, cancel context.CancelFunc) {
	v := rt.store.Version()
	rt.curMu.Lock()
	rt.cur = &current{target: target, minVersion: v, cancel: cancel}
	rt.curMu.Unlock()
}

func (rt *Runtime) clearCurrent() {
	rt.curMu.Lock()
	rt.cur = nil
	rt.curMu.Unlock()
}

// watch interrupts the in-flight attempt when its task leaves the store and
// wakes an idle scheduler on every change.
func (rt *Runtime) watch(changes <-chan store.Snapshot) {
	for snap := range changes {
		rt.signal()
		rt.curMu.Lock()
		c := rt.cur
		rt.curMu.Unlock()
		if c == nil || snap.Version < c.minVersion || snap.Has(c.target) {
			continue
		}
		rt.log.Infof("task removed during attempt; cancelling: target=%s", c.target)
		c.cancel()
	}
}
