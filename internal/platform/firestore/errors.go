package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Op names the collection action that failed and, when known, the document it targeted.
type Op struct {
	Collection string
	Action     string
	DocumentID string
}

func (o Op) String() string {
	collection := o.Collection
	if collection == "" {
		collection = "firestore"
	}
	if o.DocumentID == "" {
		return collection + "." + o.Action
	}
	return fmt.Sprintf("%s.%s %s", collection, o.Action, o.DocumentID)
}

// Error carries the gRPC status of a failed cart store call and implements repositories.RepositoryError.
type Error struct {
	op   Op
	code codes.Code
	err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }

func (e *Error) Unwrap() error { return e.err }

// Op reports the action that failed.
func (e *Error) Op() Op { return e.op }

// Code reports the gRPC status code returned by Firestore, or codes.Unknown for local failures.
func (e *Error) Code() codes.Code { return e.code }

// IsNotFound reports whether the targeted cart document does not exist.
func (e *Error) IsNotFound() bool { return e != nil && e.code == codes.NotFound }

// IsConflict reports whether a concurrent write or precondition rejected the call.
func (e *Error) IsConflict() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return true
	}
	return false
}

// IsUnavailable reports whether retrying later may succeed.
func (e *Error) IsUnavailable() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// wrapError attaches op and the status code to err. Cancellation, whether from the context or
// reported by the server, comes back as the plain context error.
func wrapError(op Op, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{op: op, code: code, err: err}
}
