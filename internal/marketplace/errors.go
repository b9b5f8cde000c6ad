package marketplace

import (
	"errors"
	"fmt"
)

// Precondition failures. These indicate caller bugs, not marketplace faults.
var (
	ErrNotComplete      = errors.New("marketplace: session is not complete")
	ErrAlreadySubmitted = errors.New("marketplace: session already submitted")
)

// Error codes carried by SubmitError.
const (
	CodeTransport = "transport"
	CodeRejected  = "rejected"
	CodeBadStatus = "bad_status"
	CodeMalformed = "malformed_response"
)

// SubmitError is a typed submission failure with a stable code and a message
// safe to show the end user. The pipeline never retries; the caller decides.
type SubmitError struct {
	Code    string
	Message string
	cause   error
}

func (e *SubmitError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("marketplace: submission failed (%s): %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("marketplace: submission failed (%s): %s", e.Code, e.Message)
}

func (e *SubmitError) Unwrap() error { return e.cause }
