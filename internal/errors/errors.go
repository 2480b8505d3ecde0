// Package errors defines the service error taxonomy and its mapping onto
// gRPC and HTTP status codes.
package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// Domain is reported in errdetails.ErrorInfo.
const Domain = "muzz.matching"

// Kind is the machine-readable error class.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindAlreadyBlocked   Kind = "ALREADY_BLOCKED"
	KindMatchNotActive   Kind = "MATCH_NOT_ACTIVE"
	KindNotParticipant   Kind = "NOT_PARTICIPANT"
	KindContention       Kind = "CONTENTION"
	KindAlreadyUnmatched Kind = "ALREADY_UNMATCHED"
	KindRateLimited      Kind = "RATE_LIMITED"
)

// GRPCCode maps a kind onto the closest gRPC status code.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case KindValidation:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindAlreadyBlocked, KindMatchNotActive, KindAlreadyUnmatched:
		return codes.FailedPrecondition
	case KindNotParticipant:
		return codes.PermissionDenied
	case KindContention:
		return codes.Aborted
	case KindRateLimited:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// Retryable is true only for transient conflicts. Every operation that can
// return one is idempotent, so the whole call may be repeated.
func (k Kind) Retryable() bool { return k == KindContention }

// Error is a domain error. Reason narrows the kind (e.g. SELF_INTEREST is a
// validation error with its own reason).
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on kind, and on reason when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrValidation       = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrSelfInterest     = &Error{Kind: KindValidation, Reason: "SELF_INTEREST", Message: "cannot express interest in yourself"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAlreadyBlocked   = &Error{Kind: KindAlreadyBlocked, Message: "a block exists between these users"}
	ErrMatchNotActive   = &Error{Kind: KindMatchNotActive, Message: "match is not active"}
	ErrNotParticipant   = &Error{Kind: KindNotParticipant, Message: "user is not part of this match"}
	ErrContention       = &Error{Kind: KindContention, Message: "concurrent update, retry the request"}
	ErrAlreadyUnmatched = &Error{Kind: KindAlreadyUnmatched, Message: "these users already unmatched"}
	ErrRateLimited      = &Error{Kind: KindRateLimited, Message: "too many requests"}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}
