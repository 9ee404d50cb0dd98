// Package errors defines the classified error type used across the sampler.
// Every failure that reaches the recovery manager carries a Kind so routing
// never depends on matching error strings.
package errors

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota

	// Collection kinds.
	KindTimeout
	KindPermissionDenied
	KindAPICallFailed
	KindInvalidData
	KindResourceUnavailable
	KindUnsupportedPlatform

	// Processing kinds.
	KindValidationFailed
	KindCalculationError
	KindConversionFailed
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindTimeout:             "timeout",
	KindPermissionDenied:    "permission_denied",
	KindAPICallFailed:       "api_call_failed",
	KindInvalidData:         "invalid_data",
	KindResourceUnavailable: "resource_unavailable",
	KindUnsupportedPlatform: "unsupported_platform",
	KindValidationFailed:    "validation_failed",
	KindCalculationError:    "calculation_error",
	KindConversionFailed:    "conversion_failed",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// severity orders kinds when several failures land in the same cycle.
// Higher wins.
func (k Kind) severity() int {
	switch k {
	case KindUnsupportedPlatform:
		return 70
	case KindPermissionDenied:
		return 60
	case KindAPICallFailed:
		return 50
	case KindResourceUnavailable:
		return 40
	case KindTimeout:
		return 30
	case KindInvalidData:
		return 20
	case KindValidationFailed, KindCalculationError, KindConversionFailed:
		return 10
	default:
		return 0
	}
}

// Error is a classified failure with the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies an existing error.
func Wrap(err error, kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op, Cause: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	} else if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the first classified error in err's chain.
// Deadline errors that were never classified count as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Dominant returns the most severe kind among the errors combined in err.
func Dominant(err error) Kind {
	best := KindUnknown
	for _, e := range multierr.Errors(err) {
		if k := KindOf(e); k.severity() > best.severity() {
			best = k
		}
	}
	return best
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransport reports kinds that count against a circuit breaker.
func IsTransport(kind Kind) bool {
	return kind == KindAPICallFailed || kind == KindResourceUnavailable
}

// IsCollection reports whether kind belongs to the collection taxonomy.
func IsCollection(kind Kind) bool {
	return kind >= KindTimeout && kind <= KindUnsupportedPlatform
}
