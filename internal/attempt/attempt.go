// Package attempt holds the types shared by the scheduler, the monitor and the
// public API: the per-attempt configuration, the classified outcome and the
// network-control contract.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureMode selects which external signal is treated as the definitive
// "this candidate failed" event.
type FailureMode string

const (
	// WrongCredential fails the attempt on an explicit rejection signal.
	WrongCredential FailureMode = "wrong_credential"
	// HandshakeTimeout fails the attempt when the handshake takes longer than
	// Config.HandshakeTimeout.
	HandshakeTimeout FailureMode = "handshake_timeout"
	// HandshakeRetryExceeded fails the attempt when the handshake repeats more
	// than Config.MaxHandshakeRetries times.
	HandshakeRetryExceeded FailureMode = "handshake_retry_exceeded"
)

// ErrUnknownFailureMode is returned by ParseFailureMode for unknown values.
var ErrUnknownFailureMode = errors.New("pojie: unknown failure mode")

// ErrInvalidConfig is wrapped by Config.Validate.
var ErrInvalidConfig = errors.New("pojie: invalid attempt config")

// ParseFailureMode converts a string into a FailureMode.
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(s) {
	case WrongCredential, HandshakeTimeout, HandshakeRetryExceeded:
		return FailureMode(s), nil
	default:
		return "", ErrUnknownFailureMode
	}
}

// Outcome is the classified result of one attempt.
type Outcome string

const (
	Success            Outcome = "success"
	CredentialRejected Outcome = "credential_rejected"
	Timeout            Outcome = "timeout"
	Error              Outcome = "error"
	Cancelled          Outcome = "cancelled"
)

// ErrUnknownOutcome is returned by ParseOutcome for unknown values.
var ErrUnknownOutcome = errors.New("pojie: unknown outcome")

// AllOutcomes lists every outcome in a stable order.
var AllOutcomes = []Outcome{Success, CredentialRejected, Timeout, Error, Cancelled}

// ParseOutcome converts a string into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	for _, o := range AllOutcomes {
		if string(o) == s {
			return o, nil
		}
	}
	return "", ErrUnknownOutcome
}

// Config is consulted for every attempt. The scheduler takes a copy at the
// start of an attempt, so later changes only affect subsequent attempts.
type Config struct {
	MaxAttemptDuration  time.Duration `json:"max_attempt_duration" mapstructure:"max_attempt_duration"`
	FailureMode         FailureMode   `json:"failure_mode" mapstructure:"failure_mode"`
	HandshakeTimeout    time.Duration `json:"handshake_timeout" mapstructure:"handshake_timeout"`
	MaxHandshakeRetries int           `json:"max_handshake_retries" mapstructure:"max_handshake_retries"`
	RetryLimit          int           `json:"retry_limit" mapstructure:"retry_limit"`
	BackoffBase         time.Duration `json:"backoff_base" mapstructure:"backoff_base"`
	// RetryDelay is the fixed wait before a retry when BackoffBase is zero.
	RetryDelay time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
	// IdlePoll bounds a single idle sleep of the scheduler.
	IdlePoll time.Duration `json:"idle_poll" mapstructure:"idle_poll"`
	// StopOnSuccess removes the whole task on the first Success instead of
	// advancing to the next candidate.
	StopOnSuccess bool `json:"stop_on_success" mapstructure:"stop_on_success"`
	// RejectGrace drops rejection signals seen within this window after the
	// attempt started; supplicants often replay the previous failure.
	RejectGrace time.Duration `json:"reject_grace" mapstructure:"reject_grace"`
	// CancelTimeout bounds the wait for Connector.Cancel.
	CancelTimeout time.Duration `json:"cancel_timeout" mapstructure:"cancel_timeout"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxAttemptDuration:  5 * time.Second,
		FailureMode:         HandshakeTimeout,
		HandshakeTimeout:    2 * time.Second,
		MaxHandshakeRetries: 1,
		IdlePoll:            500 * time.Millisecond,
		CancelTimeout:       2 * time.Second,
	}
}

// WithDefaults fills zero-valued fields that have no meaningful zero value.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttemptDuration == 0 {
		c.MaxAttemptDuration = d.MaxAttemptDuration
	}
	if c.FailureMode == "" {
		c.FailureMode = d.FailureMode
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.IdlePoll == 0 {
		c.IdlePoll = d.IdlePoll
	}
	if c.CancelTimeout == 0 {
		c.CancelTimeout = d.CancelTimeout
	}
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if _, err := ParseFailureMode(string(c.FailureMode)); err != nil {
		return fmt.Errorf("%w: failure_mode %q", ErrInvalidConfig, c.FailureMode)
	}
	if c.MaxAttemptDuration <= 0 {
		return fmt.Errorf("%w: max_attempt_duration must be positive", ErrInvalidConfig)
	}
	if c.FailureMode == HandshakeTimeout && c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake_timeout must be positive", ErrInvalidConfig)
	}
	switch {
	case c.MaxHandshakeRetries < 0:
		return fmt.Errorf("%w: max_handshake_retries is negative", ErrInvalidConfig)
	case c.RetryLimit < 0:
		return fmt.Errorf("%w: retry_limit is negative", ErrInvalidConfig)
	case c.BackoffBase < 0, c.RetryDelay < 0, c.RejectGrace < 0:
		return fmt.Errorf("%w: negative delay", ErrInvalidConfig)
	case c.IdlePoll < 0, c.CancelTimeout < 0:
		return fmt.Errorf("%w: negative poll or cancel timeout", ErrInvalidConfig)
	}
	return nil
}

// Handle identifies one in-flight connection attempt started by a Connector.
type Handle struct {
	ID         string
	Target     string
	Credential string
	// Ref carries connector-private state (a process, a network id, ...).
	Ref any
}

// Connector is the network-control collaborator. Begin starts a connection
// attempt and should return promptly; the outcome is observed through event
// sources. Cancel releases whatever Begin acquired.
type Connector interface {
	Begin(ctx context.Context, target, credential string) (Handle, error)
	Cancel(ctx context.Context, h Handle) error
}

// DelegationError wraps a failure reported by, or a panic raised in, the
// Connector.
type DelegationError struct {
	Op     string
	Target string
	Err    error
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("pojie: connector %s failed: target=%s: %v", e.Op, e.Target, e.Err)
}

func (e *DelegationError) Unwrap() error { return e.Err }
