package dto

import (
	"fmt"
	"time"

	pojie "github.com/Pojie/pojie-go"
)

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type SubmitTargetRequest struct {
	Target     string   `json:"target"`
	Candidates []string `json:"candidates"`
	StartAt    int      `json:"start_at"`
	Tip        string   `json:"tip,omitempty"`
}

func (r *SubmitTargetRequest) Validate() []string {
	var errors []string
	if r.Target == "" {
		errors = append(errors, "target is required")
	}
	if len(r.Candidates) == 0 {
		errors = append(errors, "candidates must not be empty")
	}
	if r.StartAt < 0 || (len(r.Candidates) > 0 && r.StartAt >= len(r.Candidates)) {
		errors = append(errors, "start_at is out of range")
	}
	return errors
}

func (r *SubmitTargetRequest) Options() []pojie.Option {
	opts := []pojie.Option{pojie.StartAt(r.StartAt)}
	if r.Tip != "" {
		opts = append(opts, pojie.WithTip(r.Tip))
	}
	return opts
}

type CancelResponse struct {
	Cancelled int `json:"cancelled"`
}

type StatusResponse struct {
	Running bool             `json:"running"`
	Current string           `json:"current,omitempty"`
	Targets []pojie.Progress `json:"targets"`
	Results []pojie.Result   `json:"results"`
}

// AttemptConfig renders durations as Go duration strings.
type AttemptConfig struct {
	MaxAttemptDuration  string `json:"max_attempt_duration"`
	FailureMode         string `json:"failure_mode"`
	HandshakeTimeout    string `json:"handshake_timeout"`
	MaxHandshakeRetries int    `json:"max_handshake_retries"`
	RetryLimit          int    `json:"retry_limit"`
	BackoffBase         string `json:"backoff_base"`
	RetryDelay          string `json:"retry_delay"`
	IdlePoll            string `json:"idle_poll"`
	StopOnSuccess       bool   `json:"stop_on_success"`
	RejectGrace         string `json:"reject_grace"`
	CancelTimeout       string `json:"cancel_timeout"`
}

func AttemptConfigFrom(c pojie.AttemptConfig) AttemptConfig {
	return AttemptConfig{
		MaxAttemptDuration:  c.MaxAttemptDuration.String(),
		FailureMode:         string(c.FailureMode),
		HandshakeTimeout:    c.HandshakeTimeout.String(),
		MaxHandshakeRetries: c.MaxHandshakeRetries,
		RetryLimit:          c.RetryLimit,
		BackoffBase:         c.BackoffBase.String(),
		RetryDelay:          c.RetryDelay.String(),
		IdlePoll:            c.IdlePoll.String(),
		StopOnSuccess:       c.StopOnSuccess,
		RejectGrace:         c.RejectGrace.String(),
		CancelTimeout:       c.CancelTimeout.String(),
	}
}

// UpdateAttemptConfigRequest changes only the fields that are present.
type UpdateAttemptConfigRequest struct {
	MaxAttemptDuration  *string `json:"max_attempt_duration"`
	FailureMode         *string `json:"failure_mode"`
	HandshakeTimeout    *string `json:"handshake_timeout"`
	MaxHandshakeRetries *int    `json:"max_handshake_retries"`
	RetryLimit          *int    `json:"retry_limit"`
	BackoffBase         *string `json:"backoff_base"`
	RetryDelay          *string `json:"retry_delay"`
	IdlePoll            *string `json:"idle_poll"`
	StopOnSuccess       *bool   `json:"stop_on_success"`
	RejectGrace         *string `json:"reject_grace"`
	CancelTimeout       *string `json:"cancel_timeout"`
}

// Apply returns base with the request applied, or the list of malformed
// fields.
func (r *UpdateAttemptConfigRequest) Apply(base pojie.AttemptConfig) (pojie.AttemptConfig, []string) {
	var errors []string
	duration := func(name string, src *string, dst *time.Duration) {
		if src == nil {
			return
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", name, err))
			return
		}
		*dst = d
	}

	out := base
	duration("max_attempt_duration", r.MaxAttemptDuration, &out.MaxAttemptDuration)
	duration("handshake_timeout", r.HandshakeTimeout, &out.HandshakeTimeout)
	duration("backoff_base", r.BackoffBase, &out.BackoffBase)
	duration("retry_delay", r.RetryDelay, &out.RetryDelay)
	duration("idle_poll", r.IdlePoll, &out.IdlePoll)
	duration("reject_grace", r.RejectGrace, &out.RejectGrace)
	duration("cancel_timeout", r.CancelTimeout, &out.CancelTimeout)
	if r.FailureMode != nil {
		mode, err := pojie.ParseFailureMode(*r.FailureMode)
		if err != nil {
			errors = append(errors, fmt.Sprintf("failure_mode: %v", err))
		} else {
			out.FailureMode = mode
		}
	}
	if r.MaxHandshakeRetries != nil {
		out.MaxHandshakeRetries = *r.MaxHandshakeRetries
	}
	if r.RetryLimit != nil {
		out.RetryLimit = *r.RetryLimit
	}
	if r.StopOnSuccess != nil {
		out.StopOnSuccess = *r.StopOnSuccess
	}
	return out, errors
}
