// Package errors provides the closed error taxonomy shared by every backend
// and layer. Backends translate their native errors into this taxonomy at the
// point of origin; nothing above a backend needs to know a native error type.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies an operation failure. The set is closed: a backend that
// cannot map a native error to a more specific kind uses KindOther.
type Kind int

const (
	// KindOther is a backend-specific, opaque failure.
	KindOther Kind = iota
	// KindNotFound means the path does not exist.
	KindNotFound
	// KindAlreadyExists means the path already exists and the operation
	// required it not to.
	KindAlreadyExists
	// KindPermissionDenied means the backend rejected the caller's
	// credentials or ACLs for this operation.
	KindPermissionDenied
	// KindUnsupported means the operation is not in the backend's
	// capability set.
	KindUnsupported
	// KindRangeNotSatisfiable means a read range started beyond the end of
	// the content.
	KindRangeNotSatisfiable
	// KindInvalidInput means the path or arguments were malformed before
	// any backend call was made.
	KindInvalidInput
	// KindRetryable is a transient failure; the backend believes a retry
	// may succeed.
	KindRetryable
	// KindRetriesExhausted wraps the last failure after the retry layer
	// gives up.
	KindRetriesExhausted
	// KindProtocolViolation means a layer's stream contract was misused by
	// the caller.
	KindProtocolViolation
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindUnsupported:
		return "Unsupported"
	case KindRangeNotSatisfiable:
		return "RangeNotSatisfiable"
	case KindInvalidInput:
		return "InvalidInput"
	case KindRetryable:
		return "Retryable"
	case KindRetriesExhausted:
		return "RetriesExhausted"
	case KindProtocolViolation:
		return "ProtocolViolation"
	default:
		return "Other"
	}
}

// Error is the error value returned by every public operation. It carries the
// taxonomy kind plus enough context to diagnose the failure without exposing
// the backend's native error type.
type Error struct {
	kind      Kind
	message   string
	operation string
	path      string
	backend   string
	context   map[string]string
	safe      bool
	cause     error
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Errorf creates an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// ErrKind returns the taxonomy kind carried by err. Anything that is not an
// *Error reports KindOther.
func ErrKind(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.kind
	}
	return KindOther
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// IsSafeToRetry reports whether the backend guaranteed the failed attempt had
// no partial side effect. Only meaningful for non-idempotent operations.
func IsSafeToRetry(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.safe
	}
	return false
}

// Kind returns the error's taxonomy kind.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the human-readable message without context.
func (e *Error) Message() string { return e.message }

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.kind.String())
	if e.operation != "" {
		sb.WriteString(" at ")
		sb.WriteString(e.operation)
	}
	sb.WriteString(": ")
	sb.WriteString(e.message)
	if e.backend != "" {
		fmt.Fprintf(&sb, " [backend=%s]", e.backend)
	}
	if e.path != "" {
		fmt.Fprintf(&sb, " [path=%s]", e.path)
	}
	for k, v := range e.context {
		fmt.Fprintf(&sb, " [%s=%s]", k, v)
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is against another *Error by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// WithOperation records the operation name. The first annotation wins so the
// kind stays attached to the call that produced it.
func (e *Error) WithOperation(op string) *Error {
	if e.operation == "" {
		e.operation = op
	}
	return e
}

// WithPath records the normalized path the operation addressed.
func (e *Error) WithPath(path string) *Error {
	if e.path == "" {
		e.path = path
	}
	return e
}

// WithBackend records the backend name.
func (e *Error) WithBackend(name string) *Error {
	if e.backend == "" {
		e.backend = name
	}
	return e
}

// WithContext attaches an extra key/value for diagnostics.
func (e *Error) WithContext(key, value string) *Error {
	if e.context == nil {
		e.context = make(map[string]string)
	}
	e.context[key] = value
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// SetSafeToRetry marks the failure as guaranteed side-effect free, which lets
// the retry layer re-issue non-idempotent operations.
func (e *Error) SetSafeToRetry() *Error {
	e.safe = true
	return e
}
