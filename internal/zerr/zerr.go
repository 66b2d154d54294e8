// Package zerr defines the error taxonomy every probe, persistence, and
// configuration path in Zenith returns through.
package zerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide policy (grey out a
// section, retry next tick, exit with a status code) without string
// matching.
type Kind int

const (
	// ProbeUnavailable means the capability is not supported on this
	// host (e.g. no battery). Non-fatal; the section is hidden.
	ProbeUnavailable Kind = iota
	// Permission means the probe was denied. Non-fatal; the section
	// shows "insufficient privileges".
	Permission
	// NotFound means the target of an action (pid, mount, NIC) no
	// longer exists.
	NotFound
	// Transient means a one-shot probe failure; callers should carry
	// the last known value and retry next tick.
	Transient
	// ConfigInvalid means bad CLI arguments; callers exit 1.
	ConfigInvalid
	// HistoryCorrupt means an unrecognised or damaged segment; callers
	// log and skip it, and keep running.
	HistoryCorrupt
	// Fatal means terminal init failure or an unhandled OS error in
	// the core loop; callers exit 2 after restoring the terminal.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case ProbeUnavailable:
		return "probe unavailable"
	case Permission:
		return "insufficient privileges"
	case NotFound:
		return "not found"
	case Transient:
		return "transient"
	case ConfigInvalid:
		return "invalid configuration"
	case HistoryCorrupt:
		return "history corrupt"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged, wrappable error.
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

// New builds a Kind-tagged error for operation op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ze *Error
	if errors.As(err, &ze) {
		return ze.Kind == kind
	}
	return false
}
