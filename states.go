package pojie

import (
	"github.com/Pojie/pojie-go/internal/attempt"
	"github.com/Pojie/pojie-go/internal/store"
)

// Status is the scheduling state of a task. Finished tasks are removed and
// leave a Result instead of carrying a terminal status.
type Status = store.Status

const (
	// StatusWaiting tasks are eligible for selection once their backoff elapsed.
	StatusWaiting Status = store.Waiting
	// StatusRunning is the single task currently being attempted.
	StatusRunning Status = store.Running
	// StatusCancelled tasks are being removed by CancelTarget.
	StatusCancelled Status = store.Cancelled
)

// AllStatuses lists every valid status in a stable order.
var AllStatuses = []Status{StatusWaiting, StatusRunning, StatusCancelled}

// ParseStatus converts a string into a Status, returning an error for unknown values.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrUnknownStatus
}

// Outcome is the classified result of one attempt.
type Outcome = attempt.Outcome

const (
	OutcomeSuccess            = attempt.Success
	OutcomeCredentialRejected = attempt.CredentialRejected
	OutcomeTimeout            = attempt.Timeout
	OutcomeError              = attempt.Error
	OutcomeCancelled          = attempt.Cancelled
)

// ParseOutcome converts a string into an Outcome.
func ParseOutcome(s string) (Outcome, error) { return attempt.ParseOutcome(s) }

// FailureMode selects which signal counts as a failed candidate.
type FailureMode = attempt.FailureMode

const (
	FailureWrongCredential        = attempt.WrongCredential
	FailureHandshakeTimeout       = attempt.HandshakeTimeout
	FailureHandshakeRetryExceeded = attempt.HandshakeRetryExceeded
)

// ParseFailureMode converts a string into a FailureMode.
func ParseFailureMode(s string) (FailureMode, error) { return attempt.ParseFailureMode(s) }
