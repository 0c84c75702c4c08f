package controller

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lmctld/internal/engine"
	"lmctld/pkg/types"
)

// fakeEngine is a test double for the engine boundary. runGate, when set,
// blocks Run until the channel is closed.
type fakeEngine struct {
	runGate chan struct{}
	runErr  error
	shutErr error

	mu        sync.Mutex
	shutdowns int
}

func (f *fakeEngine) Run() error {
	if f.runGate != nil {
		<-f.runGate
	}
	return f.runErr
}

func (f *fakeEngine) Shutdown() error {
	f.mu.Lock()
	f.shutdowns++
	f.mu.Unlock()
	return f.shutErr
}

func (f *fakeEngine) PID() int { return 4242 }

func (f *fakeEngine) shutdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

func fixedFactory(eng engine.Engine) engine.Factory {
	return func(types.StartupParameters) (engine.Engine, error) { return eng, nil }
}

func newTestController(f engine.Factory, pub EventPublisher) *Controller {
	return New(Config{Factory: f, Publisher: pub, Logger: zerolog.Nop()})
}

func waitForStatus(t *testing.T, c *Controller, want ServiceStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status=%q, want %q", c.Status(), want)
}

func TestStartReachesRunning(t *testing.T) {
	eng := &fakeEngine{}
	c := newTestController(fixedFactory(eng), nil)
	if c.Status() != StatusStopped {
		t.Fatalf("initial status=%q", c.Status())
	}
	if err := c.Start(types.StartupParameters{Model: "m1.gguf"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, StatusRunning)
	snap := c.Snapshot()
	if snap.PID != 4242 || snap.Model != "m1.gguf" || snap.Since.IsZero() {
		t.Fatalf("snapshot: %+v", snap)
	}
}

func TestStartRejectedWhileStartingAndRunning(t *testing.T) {
	gate := make(chan struct{})
	eng := &fakeEngine{runGate: gate}
	c := newTestController(fixedFactory(eng), nil)
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	// Second start while the first is still initializing.
	if err := c.Start(types.StartupParameters{}); !IsAlreadyRunning(err) {
		t.Fatalf("expected already-running rejection, got %v", err)
	}
	close(gate)
	waitForStatus(t, c, StatusRunning)
	if err := c.Start(types.StartupParameters{}); !IsAlreadyRunning(err) {
		t.Fatalf("expected already-running rejection while running, got %v", err)
	}
	// The rejected calls must not corrupt the first attempt's outcome.
	if c.Status() != StatusRunning {
		t.Fatalf("status=%q after rejected starts", c.Status())
	}
}

func TestStopOnStoppedRejected(t *testing.T) {
	c := newTestController(fixedFactory(&fakeEngine{}), nil)
	if err := c.Stop(); !IsNotRunning(err) {
		t.Fatalf("expected not-running rejection, got %v", err)
	}
	if c.Status() != StatusStopped {
		t.Fatalf("status changed by rejected stop: %q", c.Status())
	}
}

func TestStopWhileStartingRejected(t *testing.T) {
	gate := make(chan struct{})
	eng := &fakeEngine{runGate: gate}
	c := newTestController(fixedFactory(eng), nil)
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); !IsNotRunning(err) {
		t.Fatalf("expected rejection while starting, got %v", err)
	}
	// The in-flight start still commits.
	close(gate)
	waitForStatus(t, c, StatusRunning)
}

func TestStopShutsDownEngine(t *testing.T) {
	eng := &fakeEngine{}
	c := newTestController(fixedFactory(eng), nil)
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, StatusRunning)
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.Status() != StatusStopped {
		t.Fatalf("status=%q", c.Status())
	}
	// Stop owns the shutdown; the supervising goroutine must not repeat it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && eng.shutdownCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if n := eng.shutdownCount(); n != 1 {
		t.Fatalf("shutdown called %d times, want 1", n)
	}
}

func TestStopForcesStoppedWhenShutdownFails(t *testing.T) {
	eng := &fakeEngine{shutErr: errors.New("sigterm ignored")}
	c := newTestController(fixedFactory(eng), nil)
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, StatusRunning)
	err := c.Stop()
	if !IsShutdown(err) {
		t.Fatalf("expected shutdown error, got %v", err)
	}
	if c.Status() != StatusStopped {
		t.Fatalf("shutdown failure wedged status at %q", c.Status())
	}
	// A clean restart is possible afterwards.
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitForStatus(t, c, StatusRunning)
}

func TestInitFailureTransitionsToErrorAndAllowsRetry(t *testing.T) {
	boom := errors.New("model file truncated")
	eng := &fakeEngine{runErr: boom}
	c := newTestController(fixedFactory(eng), nil)
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, StatusError)
	snap := c.Snapshot()
	if snap.Err == nil || !errors.Is(snap.Err, boom) {
		t.Fatalf("error detail lost: %v", snap.Err)
	}
	if !IsInitialization(snap.Err) {
		t.Fatalf("expected initialization error, got %v", snap.Err)
	}
	// The failed instance was released.
	if eng.shutdownCount() != 1 {
		t.Fatalf("failed instance not released: %d shutdowns", eng.shutdownCount())
	}
	// Start from error is a re-attempt, not a rejection.
	good := &fakeEngine{}
	c.newEngine = fixedFactory(good)
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("retry from error: %v", err)
	}
	waitForStatus(t, c, StatusRunning)
}

func TestFactoryErrorTransitionsToError(t *testing.T) {
	factory := func(types.StartupParameters) (engine.Engine, error) {
		return nil, errors.New("no such binary")
	}
	c := newTestController(factory, nil)
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, StatusError)
}

func TestStopFromErrorClearsWithoutShutdown(t *testing.T) {
	eng := &fakeEngine{runErr: errors.New("boom")}
	c := newTestController(fixedFactory(eng), nil)
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, StatusError)
	before := eng.shutdownCount()
	if err := c.Stop(); err != nil {
		t.Fatalf("stop from error: %v", err)
	}
	if c.Status() != StatusStopped {
		t.Fatalf("status=%q", c.Status())
	}
	if eng.shutdownCount() != before {
		t.Fatalf("stop from error must not call shutdown again")
	}
	if c.Snapshot().Err != nil {
		t.Fatalf("stop must clear the retained error")
	}
}

func TestInitTimeoutTransitionsToError(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	eng := &fakeEngine{runGate: gate}
	c := New(Config{
		Factory:     fixedFactory(eng),
		InitTimeout: 30 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})
	if err := c.Start(types.StartupParameters{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, StatusError)
	snap := c.Snapshot()
	if snap.Err == nil {
		t.Fatalf("timeout must retain an error")
	}
}

func TestStatusIdempotent(t *testing.T) {
	c := newTestController(fixedFactory(&fakeEngine{}), nil)
	for i := 0; i < 10; i++ {
		if got := c.Status(); got != StatusStopped {
			t.Fatalf("poll %d: status=%q", i, got)
		}
	}
}

func TestLifecycleEvents(t *testing.T) {
	pub := NewMemoryPublisher()
	eng := &fakeEngine{}
	c := newTestController(fixedFactory(eng), pub)
	if err := c.Start(types.StartupParameters{Model: "m1.gguf"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, StatusRunning)
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	names := map[string]bool{}
	for _, e := range pub.Events() {
		names[e.Name] = true
	}
	for _, want := range []string{"start_accepted", "running", "stop"} {
		if !names[want] {
			t.Fatalf("missing event %q in %v", want, names)
		}
	}
}
