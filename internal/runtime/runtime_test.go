package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Pojie/pojie-go/internal/attempt"
	"github.com/Pojie/pojie-go/internal/event"
	"github.com/Pojie/pojie-go/internal/hctx"
	"github.com/Pojie/pojie-go/internal/monitor"
	"github.com/Pojie/pojie-go/internal/store"
	"github.com/stretchr/testify/require"
)

type call struct {
	target, cred string
	cursor       int
	at           time.Time
}

type fakeConn struct {
	st      *store.Store
	mu      sync.Mutex
	calls   []call
	cancels atomic.Int32
	begin   func(ctx context.Context, n int, target, cred string) (attempt.Handle, error)
}

func (f *fakeConn) Begin(ctx context.Context, target, cred string) (attempt.Handle, error) {
	tk, _ := f.st.Get(target)
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, call{target: target, cred: cred, cursor: tk.Cursor, at: time.Now()})
	f.mu.Unlock()
	if f.begin == nil {
		return attempt.Handle{}, nil
	}
	return f.begin(ctx, n, target, cred)
}

func (f *fakeConn) Cancel(context.Context, attempt.Handle) error {
	f.cancels.Add(1)
	return nil
}

func (f *fakeConn) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type env struct {
	st   *store.Store
	hub  *event.Hub
	conn *fakeConn
	rt   *Runtime
	cfg  atomic.Pointer[attempt.Config]
}

func newEnv(t *testing.T, cfg attempt.Config) *env {
	t.Helper()
	e := &env{st: store.New(), hub: event.NewHub()}
	e.cfg.Store(&cfg)
	e.conn = &fakeConn{st: e.st}
	mon := monitor.New([]event.Source{e.hub}, nil)
	e.rt = New(e.st, mon, e.conn, Config{Attempt: func() attempt.Config { return *e.cfg.Load() }})
	t.Cleanup(func() {
		if e.rt.Enabled() {
			e.rt.Stop()
		}
		e.hub.Close()
	})
	return e
}

func (e *env) submit(t *testing.T, target string, cands ...string) {
	t.Helper()
	require.NoError(t, e.st.Insert(store.Task{Target: target, Candidates: cands}))
	e.rt.Kick()
}

func waitHalt(t *testing.T, rt *Runtime) {
	t.Helper()
	select {
	case <-rt.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not halt")
	}
	require.False(t, rt.Running())
}

func baseConfig(mode attempt.FailureMode) attempt.Config {
	c := attempt.DefaultConfig()
	c.FailureMode = mode
	c.MaxAttemptDuration = time.Second
	c.IdlePoll = 20 * time.Millisecond
	c.CancelTimeout = 100 * time.Millisecond
	return c
}

func (e *env) emit(kind event.Kind, target string) {
	e.hub.Publish(event.Event{Kind: kind, Target: target, Time: time.Now()})
}

func TestRuntime_StartStop_Idempotent(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	e.rt.Start()
	e.rt.Start()
	waitHalt(t, e.rt)
	e.rt.Stop()
	e.rt.Stop()
	require.False(t, e.rt.Enabled())
}

func TestRuntime_EveryCandidateRejected(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	e.conn.begin = func(_ context.Context, _ int, target, _ string) (attempt.Handle, error) {
		e.emit(event.CredentialRejected, target)
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a", "b", "c")
	waitHalt(t, e.rt)

	calls := e.conn.Calls()
	require.Len(t, calls, 3)
	var creds []string
	var cursors []int
	for _, c := range calls {
		creds = append(creds, c.cred)
		cursors = append(cursors, c.cursor)
	}
	require.Equal(t, []string{"a", "b", "c"}, creds)

	res, ok := e.st.Result("home")
	require.True(t, ok)
	cursors = append(cursors, res.Cursor)
	require.Equal(t, []int{0, 1, 2, 3}, cursors)
	require.Equal(t, attempt.CredentialRejected, res.Outcome)
	require.Equal(t, "all 3 candidates failed", res.Tip)
	require.Equal(t, 0, e.st.Len())
	require.Eventually(t, func() bool { return e.conn.cancels.Load() == 3 }, time.Second, 5*time.Millisecond,
		"every attempt releases the network")
}

func TestRuntime_RetryLimitThenSuccess(t *testing.T) {
	cfg := baseConfig(attempt.WrongCredential)
	cfg.RetryLimit = 2
	e := newEnv(t, cfg)
	e.conn.begin = func(_ context.Context, n int, target, cred string) (attempt.Handle, error) {
		switch {
		case n < 2:
			return attempt.Handle{}, errors.New("radio busy")
		case cred == "a":
			e.emit(event.Connected, target)
		default:
			e.emit(event.CredentialRejected, target)
		}
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a", "b")
	waitHalt(t, e.rt)

	calls := e.conn.Calls()
	var creds []string
	var cursors []int
	for _, c := range calls {
		creds = append(creds, c.cred)
		cursors = append(cursors, c.cursor)
	}
	require.Equal(t, []string{"a", "a", "a", "b", "b", "b"}, creds)
	require.Equal(t, []int{0, 0, 0, 1, 1, 1}, cursors, "cursor advances only after the third attempt")

	res, ok := e.st.Result("home")
	require.True(t, ok)
	require.Equal(t, "a", res.Credential)
	require.Equal(t, attempt.Success, res.Outcome)
	require.Equal(t, 2, res.Cursor)
}

func TestRuntime_StopOnSuccess(t *testing.T) {
	cfg := baseConfig(attempt.WrongCredential)
	cfg.StopOnSuccess = true
	e := newEnv(t, cfg)
	e.conn.begin = func(_ context.Context, _ int, target, cred string) (attempt.Handle, error) {
		if cred == "b" {
			e.emit(event.Connected, target)
		} else {
			e.emit(event.CredentialRejected, target)
		}
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a", "b", "c", "d")
	waitHalt(t, e.rt)

	require.Len(t, e.conn.Calls(), 2)
	res, _ := e.st.Result("home")
	require.Equal(t, "b", res.Credential)
	require.Equal(t, "credential found: b", res.Tip)
}

func TestRuntime_AttemptTimeout(t *testing.T) {
	cfg := baseConfig(attempt.HandshakeTimeout)
	cfg.MaxAttemptDuration = 50 * time.Millisecond
	e := newEnv(t, cfg)
	e.rt.Start()
	e.submit(t, "home", "a")
	waitHalt(t, e.rt)

	res, ok := e.st.Result("home")
	require.True(t, ok)
	require.Equal(t, attempt.Timeout, res.Outcome)
}

func TestRuntime_DuplicateEventsIdempotent(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	e.conn.begin = func(_ context.Context, _ int, target, _ string) (attempt.Handle, error) {
		for i := 0; i < 5; i++ {
			e.emit(event.Connected, target)
			e.emit(event.CredentialRejected, target)
		}
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a", "b")
	waitHalt(t, e.rt)

	calls := e.conn.Calls()
	require.Len(t, calls, 2, "one attempt per candidate")
	require.Equal(t, 0, calls[0].cursor)
	require.Equal(t, 1, calls[1].cursor)
	res, _ := e.st.Result("home")
	require.Equal(t, 2, res.Cursor)
}

func TestRuntime_CancellationRace(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	started := make(chan struct{})
	interrupted := make(chan struct{})
	e.conn.begin = func(ctx context.Context, _ int, target, _ string) (attempt.Handle, error) {
		close(started)
		go func() {
			<-ctx.Done()
			close(interrupted)
		}()
		return attempt.Handle{ID: "h1"}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a", "b")
	<-started

	cur, ok := e.rt.Current()
	require.True(t, ok)
	require.Equal(t, "home", cur)
	tk, _ := e.st.Get("home")
	require.Equal(t, store.Running, tk.Status)

	require.True(t, e.st.Remove("home"))
	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Fatal("attempt not interrupted")
	}
	waitHalt(t, e.rt)

	require.Equal(t, 0, e.st.Len())
	res, ok := e.st.Result("home")
	require.True(t, ok)
	require.Equal(t, attempt.Cancelled, res.Outcome)
	require.Eventually(t, func() bool { return e.conn.cancels.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Len(t, e.conn.Calls(), 1)
}

func TestRuntime_CancelDoesNotTouchOtherTasks(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	started := make(chan string, 8)
	e.conn.begin = func(_ context.Context, _ int, target, _ string) (attempt.Handle, error) {
		started <- target
		if target == "b" {
			e.emit(event.CredentialRejected, target)
		}
		return attempt.Handle{}, nil
	}
	require.NoError(t, e.st.Insert(store.Task{Target: "a", Candidates: []string{"x"}}))
	require.NoError(t, e.st.Insert(store.Task{Target: "b", Candidates: []string{"y"}}))
	e.rt.Start()

	require.Equal(t, "a", <-started)
	e.st.Remove("a")
	require.Equal(t, "b", <-started)
	waitHalt(t, e.rt)
	rb, _ := e.st.Result("b")
	require.Equal(t, attempt.CredentialRejected, rb.Outcome)
}

func TestRuntime_StopMidAttemptReturnsTaskToWaiting(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	started := make(chan struct{})
	var once sync.Once
	e.conn.begin = func(context.Context, int, string, string) (attempt.Handle, error) {
		once.Do(func() { close(started) })
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a")
	<-started
	e.rt.Stop()

	tk, ok := e.st.Get("home")
	require.True(t, ok)
	require.Equal(t, store.Waiting, tk.Status)
	require.Equal(t, 0, tk.Cursor)
	require.Equal(t, 0, tk.Retry)
	require.False(t, e.rt.Running())
}

func TestRuntime_ConnectorPanicIsError(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	e.conn.begin = func(_ context.Context, n int, target, _ string) (attempt.Handle, error) {
		if n == 0 {
			panic("driver crashed")
		}
		e.emit(event.CredentialRejected, target)
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a", "b")
	waitHalt(t, e.rt)
	require.Len(t, e.conn.Calls(), 2, "loop survives a panicking connector")
}

func TestRuntime_BackoffWindowRespected(t *testing.T) {
	cfg := baseConfig(attempt.WrongCredential)
	cfg.RetryLimit = 2
	cfg.BackoffBase = 60 * time.Millisecond
	e := newEnv(t, cfg)
	e.conn.begin = func(context.Context, int, string, string) (attempt.Handle, error) {
		return attempt.Handle{}, errors.New("nope")
	}
	e.rt.Start()
	e.submit(t, "home", "a")
	waitHalt(t, e.rt)

	calls := e.conn.Calls()
	require.Len(t, calls, 3)
	require.GreaterOrEqual(t, calls[1].at.Sub(calls[0].at), 55*time.Millisecond)
	require.GreaterOrEqual(t, calls[2].at.Sub(calls[1].at), 115*time.Millisecond)
}

func TestRuntime_AtMostOneRunning(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	e.conn.begin = func(_ context.Context, _ int, target, _ string) (attempt.Handle, error) {
		go func() {
			time.Sleep(2 * time.Millisecond)
			e.emit(event.CredentialRejected, target)
		}()
		return attempt.Handle{}, nil
	}
	for _, id := range []string{"n1", "n2", "n3", "n4"} {
		require.NoError(t, e.st.Insert(store.Task{Target: id, Candidates: []string{"a", "b", "c"}}))
	}

	var violations atomic.Int32
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			running := 0
			for _, tk := range e.st.List() {
				if tk.Status == store.Running {
					running++
				}
				if tk.Cursor < 0 || tk.Cursor >= len(tk.Candidates) {
					violations.Add(1)
				}
			}
			if running > 1 {
				violations.Add(1)
			}
			time.Sleep(200 * time.Microsecond)
		}
	}()

	e.rt.Start()
	waitHalt(t, e.rt)
	close(stop)
	wg.Wait()
	require.Zero(t, violations.Load())
	require.Len(t, e.conn.Calls(), 12)
	require.Len(t, e.st.Results(), 4)
}

func TestRuntime_KickRestartsHaltedLoop(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.WrongCredential))
	e.conn.begin = func(_ context.Context, _ int, target, _ string) (attempt.Handle, error) {
		e.emit(event.CredentialRejected, target)
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	waitHalt(t, e.rt)

	e.submit(t, "late", "a")
	waitHalt(t, e.rt)
	require.Len(t, e.conn.Calls(), 1)

	// Kick on a stopped runtime does nothing.
	e.rt.Stop()
	require.NoError(t, e.st.Insert(store.Task{Target: "ignored", Candidates: []string{"a"}}))
	e.rt.Kick()
	require.False(t, e.rt.Running())
}

func TestRuntime_ConfigSnapshotPerAttempt(t *testing.T) {
	cfg := baseConfig(attempt.HandshakeTimeout)
	cfg.MaxAttemptDuration = 80 * time.Millisecond
	e := newEnv(t, cfg)
	started := make(chan struct{}, 4)
	e.conn.begin = func(context.Context, int, string, string) (attempt.Handle, error) {
		started <- struct{}{}
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a", "b")
	<-started

	longer := cfg
	longer.MaxAttemptDuration = 10 * time.Second
	e.cfg.Store(&longer)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("in-flight attempt picked up the new config")
	}
	e.rt.Stop()
}

func TestRuntime_ConnectorReportsOutcome(t *testing.T) {
	e := newEnv(t, baseConfig(attempt.HandshakeTimeout))
	e.conn.begin = func(ctx context.Context, _ int, _, cred string) (attempt.Handle, error) {
		st, ok := hctx.From(ctx)
		if !ok {
			return attempt.Handle{}, errors.New("no attempt state")
		}
		st.SetTip("dialing " + cred)
		if cred == "good" {
			st.Report(attempt.Success, "associated")
		} else {
			st.Report(attempt.CredentialRejected, "auth failed")
		}
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "bad", "good")
	waitHalt(t, e.rt)

	res, _ := e.st.Result("home")
	require.Equal(t, "good", res.Credential)
	require.Len(t, e.conn.Calls(), 2)
}

func TestRuntime_LateTipIgnored(t *testing.T) {
	cfg := baseConfig(attempt.WrongCredential)
	e := newEnv(t, cfg)
	late := make(chan struct{})
	e.conn.begin = func(ctx context.Context, n int, _, _ string) (attempt.Handle, error) {
		st, _ := hctx.From(ctx)
		if n == 0 {
			st.Report(attempt.CredentialRejected, "auth failed")
			go func() {
				<-ctx.Done()
				time.Sleep(50 * time.Millisecond)
				st.SetTip("late tip")
				close(late)
			}()
		}
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a", "b")

	select {
	case <-late:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt never finished")
	}
	tk, ok := e.st.Get("home")
	require.True(t, ok)
	require.Equal(t, 1, tk.Cursor)
	require.NotEqual(t, "late tip", tk.Tip)
	e.rt.Stop()
}

func TestRuntime_ConnectorCannotReportCancelled(t *testing.T) {
	cfg := baseConfig(attempt.HandshakeTimeout)
	cfg.MaxAttemptDuration = 100 * time.Millisecond
	e := newEnv(t, cfg)
	var reported atomic.Bool
	e.conn.begin = func(ctx context.Context, _ int, _, _ string) (attempt.Handle, error) {
		st, _ := hctx.From(ctx)
		reported.Store(st.Report(attempt.Cancelled, "gave up"))
		return attempt.Handle{}, nil
	}
	e.rt.Start()
	e.submit(t, "home", "a")
	waitHalt(t, e.rt)

	require.False(t, reported.Load())
	require.Len(t, e.conn.Calls(), 1)
	res, ok := e.st.Result("home")
	require.True(t, ok)
	require.Empty(t, res.Credential)
	require.Equal(t, attempt.Timeout, res.Outcome)
}
