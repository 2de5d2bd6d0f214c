package operation

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every method of a closed Operation.
	ErrClosed = errors.New("operation is closed")
	// ErrNotTerminal is returned when a result is requested before the job ended.
	ErrNotTerminal = errors.New("operation has not reached a terminal state")
	// ErrNoResultFile is returned when a finished job has no result file URL.
	ErrNoResultFile = errors.New("operation has no result file")
	// ErrFileExists is returned when the result file target exists and
	// overwriting was not requested.
	ErrFileExists = errors.New("result file already exists")
)

// FailedError reports a job that ended Failed, Expired or Aborted.
type FailedError struct {
	Kind      Kind
	RequestID string
	Status    *Status
}

func (e *FailedError) Error() string {
	msg := fmt.Sprintf("%s operation %s ended %s", e.Kind, e.RequestID, e.Status.State)
	switch n := len(e.Status.Errors); n {
	case 0:
		return msg
	case 1:
		return msg + ": " + e.Status.Errors[0].String()
	default:
		return fmt.Sprintf("%s: %s (and %d more)", msg, e.Status.Errors[0], n-1)
	}
}

// Errors returns the itemized remote errors of the failed job.
func (e *FailedError) Errors() []RemoteError { return e.Status.Errors }
