package controller

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"lmctld/internal/engine"
	"lmctld/pkg/types"
)

// Start validates the transition and launches the engine on a background
// goroutine. It is rejected while the service is starting or running; a start
// from the error state is a re-attempt and is accepted. The caller observes
// the outcome of the attempt through subsequent status polls, never through
// this return value.
func (c *Controller) Start(params types.StartupParameters) error {
	c.mu.Lock()
	if c.status == StatusStarting || c.status == StatusRunning {
		st := c.status
		c.mu.Unlock()
		c.publisher.Publish(Event{Name: "start_rejected", Fields: map[string]any{"status": string(st)}})
		return ErrAlreadyRunning(st)
	}
	c.gen++
	gen := c.gen
	c.status = StatusStarting
	c.lastErr = nil
	c.model = params.Model
	c.mu.Unlock()

	attempt := uuid.NewString()
	startsTotal.Inc()
	c.log.Info().
		Str("attempt", attempt).
		Str("model", params.Model).
		Str("host", params.Host).
		Int("port", params.Port).
		Int("ctx_size", params.ContextSize).
		Msg("service start accepted")
	c.publisher.Publish(Event{Name: "start_accepted", Attempt: attempt, Fields: map[string]any{"model": params.Model}})

	go c.supervise(gen, attempt, params)
	return nil
}

// Stop shuts the service down. A failed shutdown still forces the status to
// stopped and clears the handle: a dead instance must not wedge the
// controller in running, and availability of a clean restart wins over strict
// error propagation. The returned shutdownError only carries the message.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.status {
	case StatusStopped:
		c.mu.Unlock()
		return ErrNotRunning("service is not running")
	case StatusStarting:
		// No cancellation path exists mid-initialization; rejecting keeps the
		// state machine consistent instead of racing the start goroutine.
		c.mu.Unlock()
		return ErrNotRunning("service is not yet running")
	}
	eng := c.eng
	c.eng = nil
	c.lastErr = nil
	c.status = StatusStopped
	c.gen++
	c.cond.Broadcast()
	c.mu.Unlock()

	stopsTotal.Inc()
	serviceUp.Set(0)
	c.publisher.Publish(Event{Name: "stop", Fields: map[string]any{}})
	if eng == nil {
		// Stopping out of the error state: no live handle, nothing to shut down.
		c.log.Info().Msg("service stopped")
		return nil
	}
	if err := eng.Shutdown(); err != nil {
		c.log.Error().Err(err).Msg("engine shutdown failed, status forced to stopped")
		c.publisher.Publish(Event{Name: "shutdown_error", Fields: map[string]any{"error": err.Error()}})
		return shutdownError{err: err}
	}
	c.log.Info().Msg("service stopped")
	return nil
}

// supervise runs one start attempt: construct the engine, wait for its
// blocking initialization, commit running, then keep this goroutine alive for
// the service's whole lifetime. The engine's run call may return immediately
// in server-only mode, so the goroutine waits on the condition variable and
// only exits when the status leaves running.
func (c *Controller) supervise(gen uint64, attempt string, params types.StartupParameters) {
	eng, err := c.newEngine(params)
	if err != nil {
		c.fail(gen, attempt, err)
		return
	}
	if err := c.runInit(eng); err != nil {
		// Release the partially-constructed instance before recording the
		// failure so a later re-attempt starts from a clean slate.
		if serr := eng.Shutdown(); serr != nil {
			c.log.Warn().Str("attempt", attempt).Err(serr).Msg("shutdown after failed init")
		}
		c.fail(gen, attempt, err)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.status != StatusStarting {
		// A concurrent transition superseded this attempt; the instance must
		// not leak.
		c.mu.Unlock()
		_ = eng.Shutdown()
		return
	}
	c.eng = eng
	c.status = StatusRunning
	c.since = time.Now()
	c.mu.Unlock()

	serviceUp.Set(1)
	c.log.Info().Str("attempt", attempt).Int("pid", eng.PID()).Msg("service running")
	c.publisher.Publish(Event{Name: "running", Attempt: attempt, Fields: map[string]any{"pid": eng.PID()}})

	c.mu.Lock()
	for c.gen == gen && c.status == StatusRunning {
		c.cond.Wait()
	}
	held := c.eng == eng
	if held {
		c.eng = nil
	}
	c.mu.Unlock()

	// Best-effort shutdown if the handle is still ours; Stop normally shuts
	// the engine down itself and clears the handle before waking us.
	if held {
		if err := eng.Shutdown(); err != nil {
			c.log.Warn().Str("attempt", attempt).Err(err).Msg("best-effort shutdown failed")
		}
	}
	c.log.Debug().Str("attempt", attempt).Msg("supervision ended")
}

// fail records a background start failure, keeping the original diagnostic
// attached to the error state.
func (c *Controller) fail(gen uint64, attempt string, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.status = StatusError
	c.lastErr = initializationError{err: err}
	c.eng = nil
	c.cond.Broadcast()
	c.mu.Unlock()

	startFailuresTotal.Inc()
	serviceUp.Set(0)
	c.log.Error().Str("attempt", attempt).Err(err).Msg("service start failed")
	c.publisher.Publish(Event{Name: "start_failed", Attempt: attempt, Fields: map[string]any{"error": err.Error()}})
}

// runInit runs the engine's blocking initialization, bounded by the
// configured timeout. The state lock is never held across this call.
func (c *Controller) runInit(eng engine.Engine) error {
	if c.initTimeout <= 0 {
		return eng.Run()
	}
	done := make(chan error, 1)
	go func() { done <- eng.Run() }()
	timer := time.NewTimer(c.initTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("engine not ready after %s", c.initTimeout)
	}
}
