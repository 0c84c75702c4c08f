package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lmctld/pkg/types"
)

const (
	defaultHealthPath   = "/health"
	defaultPollInterval = 250 * time.Millisecond
	termGracePeriod     = 5 * time.Second
)

// SubprocessConfig configures the llama-server subprocess engine.
type SubprocessConfig struct {
	// Binary is the path to the llama-server executable.
	Binary string
	// HealthPath polled during startup; defaults to /health.
	HealthPath string
	// PollInterval between health probes; defaults to 250ms.
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// NewSubprocessFactory returns a Factory that spawns one llama-server process
// per start attempt and waits for its health endpoint before reporting ready.
func NewSubprocessFactory(cfg SubprocessConfig) Factory {
	if cfg.HealthPath == "" {
		cfg.HealthPath = defaultHealthPath
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return func(params types.StartupParameters) (Engine, error) {
		if strings.TrimSpace(cfg.Binary) == "" {
			return nil, errors.New("llama-server binary path is empty")
		}
		if strings.TrimSpace(params.ModelPath) == "" {
			return nil, errors.New("model path is empty")
		}
		// Timeout stays 0: every request carries its own context deadline.
		return &subprocessEngine{
			cfg:        cfg,
			params:     params,
			httpClient: &http.Client{Timeout: 0},
		}, nil
	}
}

type subprocessEngine struct {
	cfg        SubprocessConfig
	params     types.StartupParameters
	httpClient *http.Client

	mu       sync.Mutex
	cmd      *exec.Cmd
	exitErr  error
	exitDone chan struct{}
}

// args maps StartupParameters onto llama-server flags.
func (e *subprocessEngine) args() []string {
	gpuLayers := e.params.GPULayers
	if e.params.CPU {
		gpuLayers = 0
	}
	a := []string{
		"--model", e.params.ModelPath,
		"--host", e.params.Host,
		"--port", strconv.Itoa(e.params.Port),
		"--ctx-size", strconv.Itoa(e.params.ContextSize),
		"--n-predict", strconv.Itoa(e.params.NPredict),
		"--temp", strconv.FormatFloat(e.params.Temperature, 'f', -1, 64),
		"--repeat-penalty", strconv.FormatFloat(e.params.RepeatPenalty, 'f', -1, 64),
		"--n-gpu-layers", strconv.Itoa(gpuLayers),
	}
	if e.params.Threads > 0 {
		a = append(a, "--threads", strconv.Itoa(e.params.Threads))
	}
	return a
}

// Run spawns the server process and blocks until its health endpoint answers
// or the process exits. The process keeps serving after Run returns.
func (e *subprocessEngine) Run() error {
	e.mu.Lock()
	if e.cmd != nil {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	cmd := exec.Command(e.cfg.Binary, e.args()...)
	out := &logLineWriter{log: e.cfg.Logger.With().Str("stream", "llama-server").Logger()}
	cmd.Stdout = out
	cmd.Stderr = out
	exitDone := make(chan struct{})
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("spawn llama-server: %w", err)
	}
	e.cmd = cmd
	e.exitDone = exitDone
	e.mu.Unlock()

	go func() {
		err := cmd.Wait()
		e.mu.Lock()
		e.exitErr = err
		e.mu.Unlock()
		close(exitDone)
	}()

	base := fmt.Sprintf("http://%s:%d", probeHost(e.params.Host), e.params.Port)
	for {
		if e.healthy(base) {
			e.cfg.Logger.Info().Int("pid", cmd.Process.Pid).Str("base_url", base).Msg("llama-server ready")
			return nil
		}
		select {
		case <-exitDone:
			e.mu.Lock()
			err := e.exitErr
			e.cmd = nil
			e.mu.Unlock()
			if err == nil {
				err = errors.New("process exited")
			}
			return fmt.Errorf("llama-server exited before becoming healthy: %w", err)
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// Shutdown terminates the server process: SIGTERM, then SIGKILL after a grace
// period. Safe to call when the process already exited.
func (e *subprocessEngine) Shutdown() error {
	e.mu.Lock()
	cmd := e.cmd
	exitDone := e.exitDone
	e.cmd = nil
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-exitDone:
		return nil
	case <-time.After(termGracePeriod):
	}
	_ = cmd.Process.Kill()
	select {
	case <-exitDone:
	case <-time.After(termGracePeriod):
	}
	return errors.New("llama-server ignored SIGTERM and was killed")
}

func (e *subprocessEngine) PID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil && e.cmd.Process != nil {
		return e.cmd.Process.Pid
	}
	return 0
}

// healthy checks whether the server answers 2xx on the health path.
func (e *subprocessEngine) healthy(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+e.cfg.HealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// probeHost maps wildcard bind addresses to loopback for health probes.
func probeHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::":
		return "127.0.0.1"
	}
	return host
}

// logLineWriter forwards complete subprocess output lines to the logger.
type logLineWriter struct {
	log zerolog.Logger
	buf []byte
}

func (lw *logLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := indexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(lw.buf[:idx])
		if len(line) > 0 {
			lw.log.Debug().Msg(line)
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}
