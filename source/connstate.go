package source

import (
	"context"
	"io"
	"sync"
	"time"

	pojie "github.com/Pojie/pojie-go"
)

// StateSourceName tags events produced by ConnState.
const StateSourceName = "connstate"

// State is a wpa_supplicant connection state.
type State string

const (
	StateDisconnected      State = "DISCONNECTED"
	StateInterfaceDisabled State = "INTERFACE_DISABLED"
	StateInactive          State = "INACTIVE"
	StateScanning          State = "SCANNING"
	StateAuthenticating    State = "AUTHENTICATING"
	StateAssociating       State = "ASSOCIATING"
	StateAssociated        State = "ASSOCIATED"
	StateFourWayHandshake  State = "4WAY_HANDSHAKE"
	StateGroupHandshake    State = "GROUP_HANDSHAKE"
	StateCompleted         State = "COMPLETED"
)

// StateChange is one connectivity notification. Target may be empty when the
// notifier does not know the network; the last SetTarget is used then.
type StateChange struct {
	Target     string
	State      State
	AuthFailed bool
	Connected  bool
	Time       time.Time
}

// ConnState is a Source driven by connectivity-state notifications. Entering
// the 4-way handshake arms a watchdog that reports HandshakeTimedOut unless
// the attempt settles first.
type ConnState struct {
	hub     *pojie.EventHub
	log     pojie.Logger
	timeout time.Duration
	now     func() time.Time

	mu             sync.Mutex
	target         string
	attemptStart   time.Time
	handshakeStart time.Time
	handshakes     int
	gen            uint64
	timer          *time.Timer
	closed         bool
}

// NewConnState creates the adapter. A zero handshakeTimeout disables the
// watchdog.
func NewConnState(handshakeTimeout time.Duration, lg pojie.Logger) *ConnState {
	return &ConnState{
		hub:     pojie.NewEventHub(),
		log:     orNoop(lg),
		timeout: handshakeTimeout,
		now:     time.Now,
	}
}

// Subscribe implements pojie.Source.
func (c *ConnState) Subscribe(ctx context.Context) <-chan pojie.Event {
	return c.hub.Subscribe(ctx)
}

// SetTarget announces the network about to be attempted and restarts the
// attempt clock.
func (c *ConnState) SetTarget(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
	c.attemptStart = c.now()
	c.handshakeStart = time.Time{}
	c.handshakes = 0
	c.disarmLocked()
}

// Announce returns a connector middleware that calls SetTarget before every
// connection attempt.
func (c *ConnState) Announce() pojie.ConnectorMiddleware {
	return func(next pojie.BeginFunc) pojie.BeginFunc {
		return func(ctx context.Context, target, credential string) (pojie.Handle, error) {
			c.SetTarget(target)
			return next(ctx, target, credential)
		}
	}
}

// Notify classifies one state change.
func (c *ConnState) Notify(sc StateChange) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	at := sc.Time
	if at.IsZero() {
		at = c.now()
	}
	if sc.Target != "" && sc.Target != c.target {
		c.target = sc.Target
		c.attemptStart = at
		c.handshakeStart = time.Time{}
		c.handshakes = 0
		c.disarmLocked()
	}

	var ev pojie.Event
	switch {
	case sc.AuthFailed:
		c.disarmLocked()
		ev = c.eventLocked(pojie.EventCredentialRejected, at)
	case sc.Connected || sc.State == StateCompleted:
		c.disarmLocked()
		ev = c.eventLocked(pojie.EventConnected, at)
	case sc.State == StateFourWayHandshake:
		c.handshakes++
		if c.handshakeStart.IsZero() {
			c.handshakeStart = at
		}
		ev = c.eventLocked(pojie.EventHandshakeProgress, at)
		ev.HandshakeElapsed = at.Sub(c.handshakeStart)
		ev.RepeatCount = c.handshakes
		c.armLocked()
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.hub.Publish(ev)
}

// Run applies every change received until ch is closed or ctx is done.
func (c *ConnState) Run(ctx context.Context, ch <-chan StateChange) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sc, ok := <-ch:
			if !ok {
				return nil
			}
			c.Notify(sc)
		}
	}
}

// RunLines applies every wpa_cli event line of r.
func (c *ConnState) RunLines(ctx context.Context, r io.Reader) error {
	return scanLines(ctx, r, c.feed)
}

// RunCommand spawns an event monitor such as "wpa_cli -i wlan0" and applies
// every event line it prints.
func (c *ConnState) RunCommand(ctx context.Context, name string, args ...string) error {
	c.log.Infof("following supplicant events: cmd=%s", name)
	return runCommand(ctx, c.feed, name, args...)
}

func (c *ConnState) feed(line string) {
	if sc, ok := ParseWpaCliEvent(line); ok {
		c.Notify(sc)
	}
}

// Close disarms the watchdog and ends every subscription.
func (c *ConnState) Close() {
	c.mu.Lock()
	c.closed = true
	c.disarmLocked()
	c.mu.Unlock()
	c.hub.Close()
}

func (c *ConnState) eventLocked(kind pojie.EventKind, at time.Time) pojie.Event {
	return pojie.Event{
		Kind:         kind,
		Target:       c.target,
		Time:         at,
		AttemptStart: c.attemptStart,
		Source:       StateSourceName,
	}
}

func (c *ConnState) armLocked() {
	if c.timeout <= 0 || c.timer != nil {
		return
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.timeout, func() {
		c.mu.Lock()
		if c.gen != gen || c.closed {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		ev := c.eventLocked(pojie.EventHandshakeTimedOut, c.now())
		ev.HandshakeElapsed = c.timeout
		ev.RepeatCount = c.handshakes
		c.mu.Unlock()
		c.log.Debugf("handshake watchdog fired: target=%s", ev.Target)
		c.hub.Publish(ev)
	})
}

func (c *ConnState) disarmLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
