package pojie

import (
	"context"
	"errors"
	"sync"

	"github.com/Pojie/pojie-go/internal/attempt"
	"github.com/Pojie/pojie-go/internal/event"
	"github.com/Pojie/pojie-go/internal/monitor"
	rtm "github.com/Pojie/pojie-go/internal/runtime"
	"github.com/Pojie/pojie-go/internal/store"
)

// ErrNilConnector is returned by NewEngine without a Connector.
var ErrNilConnector = errors.New("pojie: nil connector")

// AttemptConfig is consulted at the start of every attempt.
type AttemptConfig = attempt.Config

// DefaultAttemptConfig returns the configuration used when none is supplied.
func DefaultAttemptConfig() AttemptConfig { return attempt.DefaultConfig() }

// EngineConfig defines the configuration for an Engine.
type EngineConfig struct {
	// Connector starts and releases connection attempts. Required.
	Connector Connector
	// Sources deliver the events outcomes are classified from. Zero sources
	// leaves only timeouts and ReportOutcome.
	Sources []Source
	// Attempt is the initial attempt configuration; zero fields get defaults.
	Attempt AttemptConfig
	// Logger is the logger used for engine events.
	Logger Logger
}

// Engine runs the single scheduler that attempts candidates against targets.
type Engine struct {
	store  *store.Store
	rt     *rtm.Runtime
	client *Client
	log    Logger

	mu      sync.Mutex
	started bool

	connMu  sync.Mutex
	base    Connector
	mws     []ConnectorMiddleware
	wrapped Connector

	cfgMu   sync.RWMutex
	attempt AttemptConfig
}

// NewEngine creates an engine. Nothing runs until Start.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Connector == nil {
		return nil, ErrNilConnector
	}
	ac := cfg.Attempt.WithDefaults()
	if err := ac.Validate(); err != nil {
		return nil, err
	}
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}

	e := &Engine{store: store.New(), log: l, base: cfg.Connector, attempt: ac}
	mon := monitor.New(cfg.Sources, l)
	e.rt = rtm.New(e.store, mon, engineConnector{e}, rtm.Config{
		Attempt: e.AttemptConfig,
		Logger:  rtLogger{Logger: l},
	})
	e.client = &Client{store: e.store, kick: e.rt.Kick, log: l}
	return e, nil
}

// Client returns the submission API bound to this engine.
func (e *Engine) Client() *Client { return e.client }

// Use adds connector middleware. Middlewares run in the order they are added
// and apply from the next attempt on.
func (e *Engine) Use(mw ConnectorMiddleware) {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	e.mws = append(e.mws, mw)
	e.wrapped = nil
}

func (e *Engine) connector() Connector {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.wrapped == nil {
		e.wrapped = wrapConnector(e.base, e.mws)
	}
	return e.wrapped
}

// Start launches the scheduler. It is idempotent and non-blocking. The
// scheduler halts whenever no target is left and resumes on the next Submit.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.log.Warnf("engine already started; ignoring Start()")
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()
	e.log.Infof("starting engine: targets=%d mode=%s", e.store.Len(), e.AttemptConfig().FailureMode)
	e.rt.Start()
}

// Stop interrupts the in-flight attempt, returning its target to waiting, and
// waits for the scheduler to exit. Targets stay queued for a later Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.log.Warnf("engine not started; ignoring Stop()")
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()
	e.log.Infof("stopping engine")
	e.rt.Stop()
}

// Running reports whether the scheduler is active.
func (e *Engine) Running() bool { return e.rt.Running() }

// Current returns the target being attempted right now.
func (e *Engine) Current() (string, bool) { return e.rt.Current() }

// Wait blocks until the scheduler halts or is stopped, or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	for {
		select {
		case <-e.rt.Done():
			if !e.rt.Running() {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SetAttemptConfig replaces the attempt configuration. The in-flight attempt
// keeps the configuration it started with.
func (e *Engine) SetAttemptConfig(c AttemptConfig) error {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return err
	}
	e.cfgMu.Lock()
	e.attempt = c
	e.cfgMu.Unlock()
	e.log.Infof("attempt config updated: mode=%s max_attempt=%s retry_limit=%d", c.FailureMode, c.MaxAttemptDuration, c.RetryLimit)
	return nil
}

// AttemptConfig returns the current attempt configuration.
func (e *Engine) AttemptConfig() AttemptConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.attempt
}

type engineConnector struct{ e *Engine }

func (c engineConnector) Begin(ctx context.Context, target, credential string) (Handle, error) {
	return c.e.connector().Begin(ctx, target, credential)
}

func (c engineConnector) Cancel(ctx context.Context, h Handle) error {
	return c.e.connector().Cancel(ctx, h)
}

// rtLogger adapts the public Logger to the internal runtime logger interface.
type rtLogger struct{ Logger }

// Event is one normalized observation emitted by a Source.
type Event = event.Event

// EventKind is the normalized signal type of an Event.
type EventKind = event.Kind

const (
	EventConnected           = event.Connected
	EventCredentialRejected  = event.CredentialRejected
	EventHandshakeProgress   = event.HandshakeProgress
	EventHandshakeTimedOut   = event.HandshakeTimedOut
	EventAssociationRejected = event.AssociationRejected
)

// Source produces events for the engine. Every Subscribe call registers an
// independent subscriber before returning.
type Source = event.Source

// EventHub is a Source that fans out published events. Custom adapters can
// embed one.
type EventHub = event.Hub

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub { return event.NewHub() }
