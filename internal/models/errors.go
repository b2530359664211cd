package models

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound         = status.Errorf(codes.NotFound, "not found")
	ErrAlreadyExists    = status.Errorf(codes.AlreadyExists, "already exists")
	ErrPermissionDenied = status.Errorf(codes.PermissionDenied, "permission denied")
	ErrUnauthenticated  = status.Errorf(codes.Unauthenticated, "unauthenticated")
	ErrInvalidArgument  = status.Errorf(codes.InvalidArgument, "invalid argument")
)

// Reason classifies why a messaging operation failed.
type Reason string

const (
	ReasonNotFound         Reason = "not_found"
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonInvalidArgument  Reason = "invalid_argument"
	ReasonAlreadyExists    Reason = "already_exists"
	ReasonUnavailable      Reason = "unavailable"
	ReasonInternal         Reason = "internal"
)

var reasonCodes = map[Reason]codes.Code{
	ReasonNotFound:         codes.NotFound,
	ReasonPermissionDenied: codes.PermissionDenied,
	ReasonUnauthenticated:  codes.Unauthenticated,
	ReasonInvalidArgument:  codes.InvalidArgument,
	ReasonAlreadyExists:    codes.AlreadyExists,
	ReasonUnavailable:      codes.Unavailable,
	ReasonInternal:         codes.Internal,
}

func (r Reason) Code() codes.Code {
	if c, ok := reasonCodes[r]; ok {
		return c
	}
	return codes.Internal
}

func ReasonFromCode(code codes.Code) Reason {
	switch code {
	case codes.NotFound:
		return ReasonNotFound
	case codes.PermissionDenied:
		return ReasonPermissionDenied
	case codes.Unauthenticated:
		return ReasonUnauthenticated
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return ReasonInvalidArgument
	case codes.AlreadyExists:
		return ReasonAlreadyExists
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted:
		return ReasonUnavailable
	default:
		return ReasonInternal
	}
}

// Failure is the error returned by every messaging operation.
type Failure struct {
	Op      string `json:"op"`
	Reason  Reason `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Err     error  `json:"-"`
}

func (f *Failure) Error() string {
	if f.Err != nil && f.Err.Error() != f.Message {
		return fmt.Sprintf("%s: %s: %v", f.Op, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Op, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) GRPCStatus() *status.Status {
	return status.New(f.Reason.Code(), f.Error())
}

// Fail builds a failure with an explicit reason.
func Fail(op string, reason Reason, format string, args ...any) *Failure {
	return &Failure{Op: op, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsFailure tags err with op. Errors that already are failures keep their
// reason; other errors are classified from their grpc status.
func AsFailure(op string, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		if f.Op == "" {
			f.Op = op
		}
		return f
	}
	reason := ReasonOf(err)
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
	}
	return &Failure{Op: op, Reason: reason, Message: msg, Err: err}
}

// ReasonOf returns the failure reason carried by err, ReasonInternal when err
// has none.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonFromCode(status.Code(err))
}
