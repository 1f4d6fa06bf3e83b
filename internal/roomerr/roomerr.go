// Package roomerr defines the error kinds shared by the host, participant
// and tracker reactors (spec §7).
package roomerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error the way the protocol handlers need to react to
// it — drop the connection, reply with a code, or just re-prompt locally.
type Kind int

const (
	// KindTransport covers any socket syscall failure other than a clean
	// peer close.
	KindTransport Kind = iota
	// KindPeerClosed means a read returned 0 bytes: the peer hung up.
	KindPeerClosed
	// KindBadFrame means the header failed to parse or the declared body
	// size overflowed a configured ceiling.
	KindBadFrame
	// KindQueueFull means add_* was attempted against a full queue.
	KindQueueFull
	// KindFileTooLarge/KindFileUnreadable are local file-prompt failures.
	KindFileTooLarge
	KindFileUnreadable
	// KindPlayerError wraps a fatal decoder/output error.
	KindPlayerError
	// KindCancelled means the user entered "-1" at a file prompt.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindPeerClosed:
		return "peer closed"
	case KindBadFrame:
		return "bad frame"
	case KindQueueFull:
		return "queue full"
	case KindFileTooLarge:
		return "file too large"
	case KindFileUnreadable:
		return "file unreadable"
	case KindPlayerError:
		return "player error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the concrete type returned by every transport/protocol/queue
// operation that can fail in a way the reactor needs to branch on.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an *Error around an existing error, attaching a stack trace
// at the wrap site via pkg/errors so a worker-goroutine failure logged by
// the reactor still points back to where it actually happened.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// Cause unwraps err past any pkg/errors stack annotation added by Wrap,
// returning the original error a transport or queue call actually failed
// with.
func Cause(err error) error {
	if e, ok := err.(*Error); ok && e.Err != nil {
		return errors.Cause(e.Err)
	}
	return errors.Cause(err)
}
