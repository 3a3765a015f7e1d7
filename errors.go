package pojie

import (
	"errors"

	"github.com/Pojie/pojie-go/internal/attempt"
	"github.com/Pojie/pojie-go/internal/store"
)

// ErrDuplicateTarget is returned when Submit is called with a target that is already being attacked.
var ErrDuplicateTarget = store.ErrDuplicate

// ErrEmptyTarget is returned when Submit is called without a target.
var ErrEmptyTarget = errors.New("pojie: empty target")

// ErrEmptyCandidates is returned when Submit is called without candidates.
var ErrEmptyCandidates = errors.New("pojie: empty candidate list")

// ErrInvalidCursor is returned when StartAt points outside the candidate list.
var ErrInvalidCursor = errors.New("pojie: start cursor out of range")

// ErrUnknownStatus is returned when an invalid status is parsed.
var ErrUnknownStatus = errors.New("pojie: unknown status")

// ErrUnknownOutcome is returned when an invalid outcome is parsed.
var ErrUnknownOutcome = attempt.ErrUnknownOutcome

// ErrUnknownFailureMode is returned when an invalid failure mode is parsed.
var ErrUnknownFailureMode = attempt.ErrUnknownFailureMode

// ErrInvalidConfig wraps every AttemptConfig validation failure.
var ErrInvalidConfig = attempt.ErrInvalidConfig

// DelegationError reports a Connector failure. The engine turns it into an
// Error outcome; it is only visible in logs and tips.
type DelegationError = attempt.DelegationError
