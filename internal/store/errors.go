package store

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectMissing matches (via errors.Is) every *Error classified as
	// KindObjectMissing.
	ErrObjectMissing = errors.New("object missing")

	// ErrInvalidKey is returned for keys a backend cannot address.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Kind classifies a storage failure.
type Kind uint8

const (
	// KindOther covers every failure that is not a definitive "no such object":
	// network, permission, throttling, corruption. Never cache it as permanent.
	KindOther Kind = iota

	// KindObjectMissing means the backend reported that the object does not exist.
	// It is a stable fact and may be cached.
	KindObjectMissing
)

func (k Kind) String() string {
	switch k {
	case KindObjectMissing:
		return "object missing"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Error is a classified storage failure.
//
// The cause is a type-erased SharedError snapshot, so an *Error can be cloned,
// cached and handed to other goroutines without holding on to backend types.
type Error struct {
	Kind  Kind
	Cause *SharedError
}

// Missing classifies cause as a definitive "no such object".
func Missing(cause error) *Error {
	return &Error{Kind: KindObjectMissing, Cause: Share(cause)}
}

// Other classifies cause as a non-definitive failure.
func Other(cause error) *Error {
	return &Error{Kind: KindOther, Cause: Share(cause)}
}

func (e *Error) Error() string {
	if e.Kind == KindObjectMissing {
		if e.Cause == nil {
			return ErrObjectMissing.Error()
		}
		return fmt.Sprintf("%s: %s", ErrObjectMissing, e.Cause)
	}
	if e.Cause == nil {
		return "storage error"
	}
	return e.Cause.Error()
}

// Unwrap returns the shared cause.
func (e *Error) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is reports ObjectMissing classification for errors.Is(err, ErrObjectMissing).
func (e *Error) Is(target error) bool {
	return target == ErrObjectMissing && e.Kind == KindObjectMissing
}

// Clone returns a copy of e. The cause is immutable and shared.
func (e *Error) Clone() *Error {
	c := *e
	return &c
}

// IsMissing reports whether err carries the ObjectMissing classification.
// Only the Kind of the outermost *Error counts; causes are never consulted.
func IsMissing(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindObjectMissing
}

// Classify returns err as an *Error. Already classified errors are returned
// as-is; anything else becomes KindOther.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return Other(err)
}

// SharedError is an immutable snapshot of an error chain: the message of each
// level, linked through Unwrap. It keeps diagnostics while dropping the
// concrete backend error types.
type SharedError struct {
	msg  string
	next *SharedError
}

// Share snapshots err and its Unwrap chain. Joined errors keep their combined
// message but are not followed.
func Share(err error) *SharedError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*SharedError); ok {
		return se
	}
	root := &SharedError{msg: err.Error()}
	cur := root
	for inner := errors.Unwrap(err); inner != nil; inner = errors.Unwrap(inner) {
		if se, ok := inner.(*SharedError); ok {
			cur.next = se
			break
		}
		cur.next = &SharedError{msg: inner.Error()}
		cur = cur.next
	}
	return root
}

func (e *SharedError) Error() string { return e.msg }

// Is matches target by message, the only identity a snapshot keeps. This lets
// errors.Is find sentinels such as context.Canceled in a shared chain.
// ErrObjectMissing is never matched: classification lives on *Error alone.
func (e *SharedError) Is(target error) bool {
	if target == nil || target == ErrObjectMissing {
		return false
	}
	return e.msg == target.Error()
}

// Unwrap returns the next level of the captured chain.
func (e *SharedError) Unwrap() error {
	if e.next == nil {
		return nil
	}
	return e.next
}

// Chain returns the captured messages, outermost first.
func (e *SharedError) Chain() []string {
	var out []string
	for cur := e; cur != nil; cur = cur.next {
		out = append(out, cur.msg)
	}
	return out
}
