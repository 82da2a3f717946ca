package admission

import (
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-admission/internal/token"
)

// Code identifies why a scan was rejected.  The string value is sent to
// the operator UI verbatim.
type Code string

const (
	CodeMalformed            Code = "Malformed"
	CodeBadSignature         Code = "BadSignature"
	CodeExpired              Code = "Expired"
	CodeUnsupportedTokenKind Code = "UnsupportedTokenKind"
	CodeTicketNotFound       Code = "TicketNotFound"
	CodeTicketVoidOrUnknown  Code = "TicketVoidOrUnknown"
	CodeInvalidRequest       Code = "InvalidRequest"
)

// Rejection is a business refusal of a scan.  Retrying the same request
// cannot succeed.  No state was changed.
type Rejection struct {
	Code Code
	Err  error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Code, r.Err)
	}
	return string(r.Code)
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(code Code, err error) *Rejection { return &Rejection{Code: code, Err: err} }

// TransientError wraps a storage failure or timeout.  The ticket state is
// unknown to the caller but unchanged by this attempt; the operator should
// rescan.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient storage error: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable storage failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// tokenRejection maps a codec error onto its rejection code.
func tokenRejection(err error) *Rejection {
	switch {
	case errors.Is(err, token.ErrExpired):
		return reject(CodeExpired, err)
	case errors.Is(err, token.ErrBadSignature):
		return reject(CodeBadSignature, err)
	default:
		return reject(CodeMalformed, err)
	}
}
