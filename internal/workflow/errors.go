package workflow

import "errors"

// Error taxonomy for workflow operations. Handlers match these with
// errors.Is; collaborator errors carry the verbatim reason text appended to
// the sentinel.
var (
	// ErrInvalidTransition means the operation is not legal in the session's
	// current status. The session is left untouched.
	ErrInvalidTransition = errors.New("operation not permitted in current session status")

	// ErrMissingData means data from a required prior step is absent,
	// indicating a client-side ordering bug. The session is left untouched.
	ErrMissingData = errors.New("missing required session data")

	// ErrCollaboratorRejected means a remote service evaluated the input and
	// explicitly rejected it. The session stays in, or reverts to, the
	// retry-eligible prior status.
	ErrCollaboratorRejected = errors.New("collaborator rejected input")

	// ErrCollaboratorUnavailable means a transport failure talking to a
	// remote service. During submission steps no state changes; during final
	// verification the session routes to manual review instead.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
