// Package dmerrors defines the typed errors returned by every tier of the
// drop-manager hierarchy, mirroring the exception hierarchy of
// dfms.exceptions: InvalidGraphException, DaliugeException and
// SubManagerException.
package dmerrors

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// DaliugeError is the catch-all error returned for conditions that don't
// warrant a more specific type, matching dfms.exceptions.DaliugeException.
var DaliugeError = xerrors.New("daliuge error")

// UnknownUIDError is returned when a caller references a UID that was
// never registered in the session graph.
var UnknownUIDError = xerrors.New("unknown uid")

// InvalidGraphError reports a malformed graph submission: a missing
// partition attribute, or a partition value that doesn't name a host
// managed by this tier.
type InvalidGraphError struct {
	OID    string
	Reason string
}

func (e *InvalidGraphError) Error() string {
	return fmt.Sprintf("drop %s: %s", e.OID, e.Reason)
}

// Is allows errors.Is(err, DaliugeError) to match an InvalidGraphError,
// since it is a specialisation of the generic daliuge error.
func (e *InvalidGraphError) Is(target error) bool {
	return target == DaliugeError
}

// AgentStartupError is returned when a child agent could not be reached
// after an SSH-triggered bootstrap attempt.
type AgentStartupError struct {
	Host string
	Port int
	Err  error
}

func (e *AgentStartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to start the agent on %s:%d: %v", e.Host, e.Port, e.Err)
	}
	return fmt.Sprintf("agent started on %s:%d, but couldn't connect to it", e.Host, e.Port)
}

func (e *AgentStartupError) Unwrap() error { return e.Err }

// TransportError wraps a failure to reach a child agent at the RPC layer
// (a dial failure, a non-status RPC error, or a gRPC Unavailable status
// such as a refused or reset connection).
type TransportError struct {
	Host string
	Port int
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error talking to %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError wraps a domain-level error reported by a remote agent (the
// RPC itself succeeded, but the agent's operation failed).
type RemoteError struct {
	Host string
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error from %s: %v", e.Host, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// SubManagerError aggregates the per-host failures collected while
// replicating an operation across a set of children, mirroring
// dfms.exceptions.SubManagerException(msg, exceptions_dict).
type SubManagerError struct {
	Action    string
	SessionID string
	Errors    map[string]error
}

func (e *SubManagerError) Error() string {
	return fmt.Sprintf("one or more errors occurred while %s on session %s: %v",
		e.Action, e.SessionID, e.multiError())
}

// Unwrap exposes the aggregated causes so callers can xerrors.As/errors.Is
// through to an individual host's error.
func (e *SubManagerError) Unwrap() error {
	return e.multiError()
}

func (e *SubManagerError) multiError() error {
	var merr *multierror.Error
	for host, err := range e.Errors {
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", host, err))
	}
	return merr.ErrorOrNil()
}

// NewSubManagerError returns nil if errs is empty, and a populated
// *SubManagerError otherwise — the fan-out executor's all-or-nothing
// collector.
func NewSubManagerError(action, sessionID string, errs map[string]error) error {
	if len(errs) == 0 {
		return nil
	}
	return &SubManagerError{Action: action, SessionID: sessionID, Errors: errs}
}
