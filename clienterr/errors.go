package clienterr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind sentinels. Match them with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrIO            = errors.New("io error")
	ErrDiscovery     = errors.New("discovery error")
	ErrTokenFetch    = errors.New("token fetch error")
	ErrCredential    = errors.New("credential error")
)

// Error carries an error kind, the operation that failed and the underlying cause.
type Error struct {
	// Kind is one of the package sentinels.
	Kind error
	// Op names the failing operation, e.g. "oidc.FetchDiscovery".
	Op string
	// Message describes the failure when there is no cause, or adds context to it.
	Message string
	// Err is the underlying cause (may be nil).
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	msg := e.Op
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// GRPCStatus lets gRPC status helpers classify credential failures returned from client
// interceptors. Token, discovery and credential kinds map to codes.Unauthenticated.
func (e *Error) GRPCStatus() *status.Status {
	switch e.Kind {
	case ErrTokenFetch, ErrDiscovery, ErrCredential:
		return status.New(codes.Unauthenticated, e.Error())
	case ErrConfiguration:
		return status.New(codes.InvalidArgument, e.Error())
	default:
		return status.New(codes.Unknown, e.Error())
	}
}

func newError(kind error, op string, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// Configuration returns an ErrConfiguration error.
func Configuration(op, format string, args ...any) *Error {
	return newError(ErrConfiguration, op, nil, format, args...)
}

// IO returns an ErrIO error wrapping cause.
func IO(op string, cause error, format string, args ...any) *Error {
	return newError(ErrIO, op, cause, format, args...)
}

// Discovery returns an ErrDiscovery error wrapping cause (which may be nil).
func Discovery(op string, cause error, format string, args ...any) *Error {
	return newError(ErrDiscovery, op, cause, format, args...)
}

// TokenFetch returns an ErrTokenFetch error wrapping cause (which may be nil).
func TokenFetch(op string, cause error, format string, args ...any) *Error {
	return newError(ErrTokenFetch, op, cause, format, args...)
}

// Credential returns an ErrCredential error wrapping cause (which may be nil).
func Credential(op string, cause error, format string, args ...any) *Error {
	return newError(ErrCredential, op, cause, format, args...)
}

// Failure classifies why an RPC did not succeed.
type Failure int

const (
	// FailureNone means the RPC succeeded.
	FailureNone Failure = iota
	// FailureCredential means no usable bearer token could be attached, or the server rejected it.
	FailureCredential
	// FailureTransport means the service could not be reached.
	FailureTransport
	// FailureApplication means the service answered with an error status.
	FailureApplication
)

// String returns a lowercase name for the failure class.
func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureCredential:
		return "credential"
	case FailureTransport:
		return "transport"
	case FailureApplication:
		return "application"
	default:
		return fmt.Sprintf("failure(%d)", int(f))
	}
}

// FromRPC classifies an error returned by a stub method.
//
// Local credential failures (token fetch, discovery, malformed material) and server-side
// Unauthenticated responses are FailureCredential. Unavailable and DeadlineExceeded are
// FailureTransport. Any other status is FailureApplication.
func FromRPC(err error) Failure {
	if err == nil {
		return FailureNone
	}

	if errors.Is(err, ErrTokenFetch) || errors.Is(err, ErrDiscovery) || errors.Is(err, ErrCredential) {
		return FailureCredential
	}

	switch status.Code(err) {
	case codes.OK:
		return FailureNone
	case codes.Unauthenticated:
		return FailureCredential
	case codes.Unavailable, codes.DeadlineExceeded:
		return FailureTransport
	default:
		return FailureApplication
	}
}
