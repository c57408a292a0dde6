package studysession

import "fmt"

// SessionError is a guard failure raised before any remote call is made
type SessionError string

// Error implements the error interface
func (e SessionError) Error() string {
	return string(e)
}

const (
	ErrNilStore           SessionError = "session store cannot be nil"
	ErrNilSessionID       SessionError = "session id cannot be empty"
	ErrNotLoaded          SessionError = "session has not been loaded"
	ErrClosed             SessionError = "session controller is closed"
	ErrAlreadyActive      SessionError = "session is already active"
	ErrNotActive          SessionError = "session is not active"
	ErrNotStarted         SessionError = "session was never started"
	ErrAlreadyCompleted   SessionError = "session is already completed"
	ErrCompletionInFlight SessionError = "session completion already in progress"
	ErrUnknownObjective   SessionError = "objective does not belong to this session"
)

// RemoteError wraps any failure reported by the session store. Local state is
// never changed when one is returned.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
