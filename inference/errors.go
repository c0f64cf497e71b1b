package inference

import (
	"errors"
	"fmt"
)

// Kind classifies inference failures. The set is closed.
type Kind int

const (
	// KindValidation means the caller sent a value the model cannot use.
	KindValidation Kind = iota + 1
	// KindInference means the model failed to produce a probability.
	KindInference
	// KindArtifact means a model or means artifact is missing, corrupt or
	// misaligned.
	KindArtifact
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInference:
		return "inference"
	case KindArtifact:
		return "artifact"
	default:
		return "unknown"
	}
}

// Retriable reports whether repeating the same call may succeed.
func (k Kind) Retriable() bool {
	return k == KindInference
}

// Error wraps a failure with its kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
