// Package tdnserr defines the error-kind taxonomy from spec.md §7, used by
// the orchestrator and the CLI to pick an exit code and a one-line
// diagnostic without string-matching error messages.
package tdnserr

import "fmt"

// Kind classifies a fatal error for exit-code mapping.
type Kind int

const (
	// Config covers malformed arguments, unsupported TSIG algorithms, or a
	// missing key file.
	Config Kind = iota
	// Discovery covers SOA/NS lookup failure, an empty NS set, or every
	// authority being excluded.
	Discovery
	// Protocol covers a malformed response or TSIG verification failure.
	// Never retried.
	Protocol
	// UpdateRejected covers a non-NOERROR RCODE from the primary master.
	UpdateRejected
	// ConvergenceTimeout covers the global deadline elapsing before every
	// authority was satisfied.
	ConvergenceTimeout
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "configuration error"
	case Discovery:
		return "discovery error"
	case Protocol:
		return "protocol error"
	case UpdateRejected:
		return "update rejected"
	case ConvergenceTimeout:
		return "convergence timeout"
	default:
		return "error"
	}
}

// Error is a Kind-tagged fatal error. It never wraps a transient transport
// error — those are resolved (retried to success, or converted to one of
// these kinds) before reaching the orchestrator, per spec.md §7's policy.
type Error struct {
	Kind   Kind
	Zone   string // optional: the zone involved, if relevant
	Server string // optional: the endpoint involved, if relevant
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Err.Error()
	if e.Server != "" {
		msg += " (server " + e.Server + ")"
	}
	if e.Zone != "" {
		msg += " (zone " + e.Zone + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds an Error of the given kind from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithZone attaches a zone name to the error for diagnostics.
func (e *Error) WithZone(zone string) *Error {
	e.Zone = zone
	return e
}

// WithServer attaches a server endpoint to the error for diagnostics.
func (e *Error) WithServer(server string) *Error {
	e.Server = server
	return e
}

// ExitCode maps a Kind to a process exit code, distinguishing at minimum the
// categories named in spec.md §6.
func (k Kind) ExitCode() int {
	switch k {
	case Config:
		return 2
	case Discovery:
		return 3
	case UpdateRejected:
		return 4
	case Protocol:
		return 5
	case ConvergenceTimeout:
		return 6
	default:
		return 1
	}
}
