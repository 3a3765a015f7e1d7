// Package monitor turns the raw event streams of every configured source into
// exactly one outcome per attempt.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Pojie/pojie-go/internal/attempt"
	"github.com/Pojie/pojie-go/internal/event"
)

// Logger mirrors the public logger in the root package.
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

// Monitor merges a fixed set of sources. Zero sources is valid; every watch
// is then resolved by its owner.
type Monitor struct {
	sources []event.Source
	log     Logger
}

// New creates a monitor over sources.
func New(sources []event.Source, lg Logger) *Monitor {
	if lg == nil {
		lg = noopLogger{}
	}
	return &Monitor{sources: append([]event.Source(nil), sources...), log: lg}
}

// Watch observes one attempt.
type Watch struct {
	target string
	start  time.Time
	cfg    attempt.Config
	log    Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	once    sync.Once
	done    chan struct{}
	outcome attempt.Outcome
	reason  string

	mu             sync.Mutex
	repeats        int
	firstHandshake time.Time
	timer          *time.Timer
}

// Watch subscribes to every source before returning, so no event emitted
// after this call is missed, and classifies events for target observed at or
// after start.
func (m *Monitor) Watch(ctx context.Context, target string, start time.Time, cfg attempt.Config) *Watch {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		target: target,
		start:  start,
		cfg:    cfg,
		log:    m.log,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, src := range m.sources {
		ch := src.Subscribe(wctx)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consume(wctx, ch)
		}()
	}
	return w
}

func (w *Watch) consume(ctx context.Context, ch <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			w.handle(ev)
		}
	}
}

// Resolve settles the watch. Only the first call takes effect; it reports
// whether this call was the one.
func (w *Watch) Resolve(o attempt.Outcome, reason string) bool {
	won := false
	w.once.Do(func() {
		w.outcome = o
		w.reason = reason
		won = true
		close(w.done)
	})
	if won {
		w.mu.Lock()
		w.disarmLocked()
		w.mu.Unlock()
	}
	return won
}

// Done is closed once the watch is resolved.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Outcome returns the resolved outcome, or "" while pending.
func (w *Watch) Outcome() attempt.Outcome {
	select {
	case <-w.done:
		return w.outcome
	default:
		return ""
	}
}

// Reason returns the human readable reason of the resolution.
func (w *Watch) Reason() string {
	select {
	case <-w.done:
		return w.reason
	default:
		return ""
	}
}

// Stop unsubscribes from every source. A pending watch resolves as Cancelled.
func (w *Watch) Stop() {
	w.Resolve(attempt.Cancelled, "watch stopped")
	w.cancel()
	w.wg.Wait()
}

func (w *Watch) handle(ev event.Event) {
	select {
	case <-w.done:
		return
	default:
	}
	if ev.Target != "" && ev.Target != w.target {
		w.log.Warnf("event for another network while attempting: want=%s got=%s kind=%s", w.target, ev.Target, ev.Kind)
		return
	}
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	if at.Before(w.start) || (!ev.AttemptStart.IsZero() && ev.AttemptStart.Before(w.start)) {
		w.log.Debugf("stale event dropped: target=%s kind=%s", w.target, ev.Kind)
		return
	}

	switch ev.Kind {
	case event.Connected:
		w.Resolve(attempt.Success, "connected")
	case event.AssociationRejected:
		w.Resolve(attempt.Error, "association rejected")
	case event.CredentialRejected:
		if w.cfg.FailureMode != attempt.WrongCredential {
			return
		}
		if at.Before(w.start.Add(w.cfg.RejectGrace)) {
			w.log.Debugf("rejection inside grace window ignored: target=%s", w.target)
			return
		}
		w.Resolve(attempt.CredentialRejected, "credential rejected")
	case event.HandshakeTimedOut:
		if w.cfg.FailureMode == attempt.HandshakeTimeout {
			w.Resolve(attempt.Timeout, "handshake timed out")
		}
	case event.HandshakeProgress:
		w.progress(ev, at)
	default:
		w.log.Debugf("unknown event kind ignored: kind=%s", ev.Kind)
	}
}

func (w *Watch) progress(ev event.Event, at time.Time) {
	w.mu.Lock()
	w.repeats++
	if ev.RepeatCount > w.repeats {
		w.repeats = ev.RepeatCount
	}
	repeats := w.repeats
	first := w.firstHandshake.IsZero()
	if first {
		w.firstHandshake = at
	}
	elapsed := ev.HandshakeElapsed
	if elapsed == 0 {
		elapsed = at.Sub(w.firstHandshake)
	}
	w.mu.Unlock()

	switch w.cfg.FailureMode {
	case attempt.HandshakeTimeout:
		if elapsed > w.cfg.HandshakeTimeout {
			w.Resolve(attempt.Timeout, fmt.Sprintf("handshake took %s", elapsed))
			return
		}
		if first {
			w.arm(w.cfg.HandshakeTimeout - elapsed)
		}
	case attempt.HandshakeRetryExceeded:
		if repeats > w.cfg.MaxHandshakeRetries {
			w.Resolve(attempt.Timeout, fmt.Sprintf("handshake repeated %d times", repeats))
		}
	}
}

func (w *Watch) arm(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		return
	default:
	}
	if w.timer != nil {
		return
	}
	timeout := w.cfg.HandshakeTimeout
	w.timer = time.AfterFunc(d, func() {
		w.Resolve(attempt.Timeout, fmt.Sprintf("no connection %s after handshake started", timeout))
	})
}

func (w *Watch) disarmLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
