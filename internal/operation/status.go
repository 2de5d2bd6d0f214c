// Package operation tracks long-running remote bulk jobs: it polls a job's
// status until it reaches a terminal state and retrieves its result file.
package operation

import (
	"fmt"
	"strings"
)

// Kind is the kind of remote job.
type Kind string

const (
	Download Kind = "Download"
	Upload   Kind = "Upload"
	Report   Kind = "Report"
)

// ParseKind accepts a kind name in any letter case.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Download, Upload, Report} {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown operation kind %q", s)
}

// State is the remote status of a job.
type State string

const (
	Pending             State = "Pending"
	InProgress          State = "InProgress"
	Completed           State = "Completed"
	CompletedWithErrors State = "CompletedWithErrors"
	Failed              State = "Failed"
	Expired             State = "Expired"
	Aborted             State = "Aborted"
)

// Terminal reports whether no further transition can happen. Every job kind
// shares the same terminal set.
func (s State) Terminal() bool {
	switch s {
	case Completed, CompletedWithErrors, Failed, Expired, Aborted:
		return true
	}
	return false
}

// Failed reports whether s is a terminal state without a usable result.
func (s State) Failed() bool {
	switch s {
	case Failed, Expired, Aborted:
		return true
	}
	return false
}

// RemoteError is one itemized error reported by the remote service for a job.
type RemoteError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (e RemoteError) String() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s (%d): %s", e.ErrorCode, e.Code, e.Message)
	}
	return e.Message
}

// Status is a snapshot of a job's remote status.
type Status struct {
	RequestID       string        `json:"requestId"`
	State           State         `json:"status"`
	PercentComplete int           `json:"percentComplete"`
	ResultFileURL   string        `json:"resultFileUrl,omitempty"`
	Errors          []RemoteError `json:"errors,omitempty"`
}

func (s *Status) clone() *Status {
	c := *s
	c.Errors = append([]RemoteError(nil), s.Errors...)
	return &c
}
