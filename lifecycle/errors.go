package lifecycle

import "errors"

// Sentinel errors forming the transition failure taxonomy. Engine methods
// wrap these with operation context; callers match with errors.Is and map
// them onto user-visible behavior (the HTTP layer turns InvalidTransition
// and AlreadyAssigned into 409, Forbidden into 403, NotFound into 404, and
// Transport into 502).
var (
	// ErrNotFound indicates the operation does not exist.
	ErrNotFound = errors.New("operation not found")

	// ErrInvalidTransition indicates the operation's current status does
	// not permit the requested transition.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden indicates the acting operator is not the assignee.
	ErrForbidden = errors.New("operator is not the assignee")

	// ErrAlreadyAssigned is the defensive double-claim guard: the
	// operation already carries an assignee even though claim requires
	// an open, unassigned operation.
	ErrAlreadyAssigned = errors.New("operation already assigned")

	// ErrTransport indicates the store call failed or timed out
	// mid-transition. No partial success may be assumed; callers should
	// re-fetch authoritative state rather than guess.
	ErrTransport = errors.New("store transport failure")
)
