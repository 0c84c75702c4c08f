// Package controller supervises the single long-running inference service.
// It owns the status state machine and the engine handle behind one lock and
// exposes only Start, Stop and status reads; the engine's blocking
// initialization always runs on a background goroutine so callers never wait
// past parameter validation.
package controller

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lmctld/internal/engine"
)

// Controller owns the one service instance. Status and handle are shared
// between the control path and the supervising goroutine; every access goes
// through mu. The condition variable wakes the supervising goroutine exactly
// when the status leaves running.
type Controller struct {
	mu   sync.RWMutex
	cond *sync.Cond

	status  ServiceStatus
	eng     engine.Engine
	lastErr error
	model   string
	since   time.Time
	// gen invalidates background goroutines from superseded start attempts.
	gen uint64

	newEngine   engine.Factory
	initTimeout time.Duration
	publisher   EventPublisher
	log         zerolog.Logger
}

// Config encapsulates all tunables for Controller construction.
type Config struct {
	Factory engine.Factory
	// InitTimeout bounds the engine's blocking initialization; 0 disables it
	// and a start that never completes leaves the service starting forever.
	InitTimeout time.Duration
	Publisher   EventPublisher
	Logger      zerolog.Logger
}

// New constructs a Controller in the stopped state.
func New(cfg Config) *Controller {
	c := &Controller{
		status:      StatusStopped,
		newEngine:   cfg.Factory,
		initTimeout: cfg.InitTimeout,
		publisher:   cfg.Publisher,
		log:         cfg.Logger,
	}
	if c.publisher == nil {
		c.publisher = noopPublisher{}
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Status returns the current lifecycle status. Pure read; never blocks on
// the supervising goroutine.
func (c *Controller) Status() ServiceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Snapshot returns a read-only view of the controller state, including the
// retained failure detail while the status is error.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{Status: c.status, Err: c.lastErr, Model: c.model}
	if c.status == StatusRunning {
		s.Since = c.since
		if c.eng != nil {
			s.PID = c.eng.PID()
		}
	}
	return s
}
