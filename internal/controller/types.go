package controller

import "time"

// ServiceStatus represents the lifecycle state of the supervised service.
// It is the sole source of truth for whether a start or stop request is valid.
type ServiceStatus string

const (
	StatusStopped  ServiceStatus = "stopped"
	StatusStarting ServiceStatus = "starting"
	StatusRunning  ServiceStatus = "running"
	StatusError    ServiceStatus = "error"
)

// Snapshot is a read-only projection of the controller state.
type Snapshot struct {
	Status ServiceStatus
	// Err retains the failure that moved the controller to StatusError.
	Err error
	// Model of the current (or last attempted) start.
	Model string
	// PID of the engine process while running, 0 otherwise.
	PID int
	// Since is the time the service reached running; zero otherwise.
	Since time.Time
}
