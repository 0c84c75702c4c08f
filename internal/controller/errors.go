package controller

// alreadyRunningError rejects Start while a service is starting or running.
type alreadyRunningError struct{ status ServiceStatus }

func (e alreadyRunningError) Error() string {
	return "service is already " + string(e.status)
}

// ErrAlreadyRunning constructs the Start rejection for the given status.
func ErrAlreadyRunning(status ServiceStatus) error {
	return alreadyRunningError{status: status}
}

// IsAlreadyRunning reports whether err is a Start rejection (return 400).
func IsAlreadyRunning(err error) bool {
	_, ok := err.(alreadyRunningError)
	return ok
}

// notRunningError rejects Stop when there is nothing stoppable.
type notRunningError struct{ reason string }

func (e notRunningError) Error() string { return e.reason }

// ErrNotRunning constructs the Stop rejection with the given reason.
func ErrNotRunning(reason string) error {
	return notRunningError{reason: reason}
}

// IsNotRunning reports whether err is a Stop rejection (return 400).
func IsNotRunning(err error) bool {
	_, ok := err.(notRunningError)
	return ok
}

// initializationError wraps a background failure during Start. It is retained
// on the error state and surfaced through status polls, never synchronously
// to the original Start caller.
type initializationError struct{ err error }

func (e initializationError) Error() string {
	return "engine initialization failed: " + e.err.Error()
}

func (e initializationError) Unwrap() error { return e.err }

// IsInitialization reports whether err records a failed engine start.
func IsInitialization(err error) bool {
	_, ok := err.(initializationError)
	return ok
}

// shutdownError wraps a failure during Stop's shutdown call. The status is
// forced to stopped regardless; the error only carries the message.
type shutdownError struct{ err error }

func (e shutdownError) Error() string {
	return "engine shutdown failed: " + e.err.Error()
}

func (e shutdownError) Unwrap() error { return e.err }

// IsShutdown reports whether err came from a shutdown that failed while the
// stop itself still took effect.
func IsShutdown(err error) bool {
	_, ok := err.(shutdownError)
	return ok
}
