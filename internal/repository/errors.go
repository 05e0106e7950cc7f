package repository

import (
	"errors"
	"fmt"
)

// Kind classifies a repository failure so callers can tell "nothing there"
// apart from "the operation failed".
type Kind int

const (
	// KindUnknown is any storage failure not covered by another kind.
	KindUnknown Kind = iota

	// KindNotFound means the requested calendar does not exist.
	KindNotFound

	// KindValidation means an input payload was rejected.
	KindValidation

	// KindQuota means the write did not fit even after eviction and
	// compression.
	KindQuota

	// KindCorrupt means a stored record exists but cannot be decoded.
	// Corrupt records also match ErrNotFound.
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation"
	case KindQuota:
		return "quota exceeded"
	case KindCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrNotFound      = errors.New("calendar not found")
	ErrValidation    = errors.New("invalid calendar payload")
	ErrQuotaExceeded = errors.New("calendar storage quota exceeded")
	ErrCorrupt       = errors.New("corrupt calendar record")
)

// Error is the failure type returned by every Repository operation.
type Error struct {
	Op   string
	ID   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound || e.Kind == KindCorrupt
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrQuotaExceeded:
		return e.Kind == KindQuota
	case ErrCorrupt:
		return e.Kind == KindCorrupt
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

func newError(op, id string, kind Kind, err error) *Error {
	return &Error{Op: op, ID: id, Kind: kind, Err: err}
}

func validationError(op, format string, args ...any) *Error {
	return newError(op, "", KindValidation, fmt.Errorf(format, args...))
}
