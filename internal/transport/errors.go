package transport

import (
	"fmt"

	"github.com/infobloxopen/cq-source-bulk/internal/operation"
)

// FaultError is a non-2xx response of the remote service.
type FaultError struct {
	StatusCode int                     `json:"-"`
	TrackingID string                  `json:"trackingId,omitempty"`
	Code       string                  `json:"code,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Errors     []operation.RemoteError `json:"errors,omitempty"`
}

func (e *FaultError) Error() string {
	msg := e.Message
	if msg == "" && len(e.Errors) > 0 {
		msg = e.Errors[0].String()
	}
	if msg == "" {
		msg = "no details"
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("remote fault (HTTP %d, tracking id %s): %s", e.StatusCode, e.TrackingID, msg)
}
