// Package apierr defines the abstract error taxonomy shared by every
// component and provider adapter (spec §7). Provider code translates
// native cloud/API errors into one of these kinds so callers can
// distinguish failure modes with errors.Is/errors.As without depending on
// any provider's SDK error types.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error kinds a caller can distinguish.
type Kind int

const (
	// KindBadRequest means caller-supplied input could not be parsed or is
	// semantically invalid.
	KindBadRequest Kind = iota
	// KindNotFound means the named object or resource does not exist.
	KindNotFound
	// KindConflict means a unique-name collision occurred during create.
	KindConflict
	// KindPreconditionFailed means a where/MatchCondition refused the operation.
	KindPreconditionFailed
	// KindNotModified means a read-side condition says the client already has this.
	KindNotModified
	// KindUnsupported means the provider does not implement a requested feature.
	KindUnsupported
	// KindTimeout means a waiter expired; state is unknown but best-effort returned.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindNotModified:
		return "NotModified"
	case KindUnsupported:
		return "Unsupported"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind, a message, and the original native error (if any) so
// callers can unwrap to the underlying cloud SDK error via errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Native  error
}

func (e *Error) Error() string {
	if e.Native != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Native)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Native }

// Is lets errors.Is(err, apierr.NotFound) match any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newKind(kind Kind) *Error { return &Error{Kind: kind} }

// Sentinel values for errors.Is comparisons, e.g. errors.Is(err, apierr.NotFound).
var (
	BadRequest         = newKind(KindBadRequest)
	NotFound           = newKind(KindNotFound)
	Conflict           = newKind(KindConflict)
	PreconditionFailed = newKind(KindPreconditionFailed)
	NotModified        = newKind(KindNotModified)
	Unsupported        = newKind(KindUnsupported)
	Timeout            = newKind(KindTimeout)
)

// New builds a new *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a new *Error of the given kind, preserving native as the
// unwrap target so the original cloud error is never hidden (spec §7).
func Wrap(kind Kind, native error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Native: native}
}

// Is reports whether err (or anything it wraps) is an *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
