package engine

import "lmctld/pkg/types"

// Engine is the external inference worker supervised by the controller.
//
// Run performs the blocking initialization and returns once the service is
// ready to serve; the underlying worker may keep serving after Run returns.
// Shutdown releases the instance and must be called at most once; calling it
// is the controller's exclusive responsibility.
type Engine interface {
	Run() error
	Shutdown() error
	// PID of the worker process, or 0 when not applicable.
	PID() int
}

// Factory constructs an engine instance for one start attempt.
type Factory func(params types.StartupParameters) (Engine, error)
