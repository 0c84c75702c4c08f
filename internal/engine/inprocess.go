//go:build llama

package engine

import (
	"errors"
	"os"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"lmctld/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// NewInProcessFactory returns a Factory that loads the model in-process via
// go-llama.cpp instead of spawning a server binary.
func NewInProcessFactory() Factory {
	return func(params types.StartupParameters) (Engine, error) {
		if strings.TrimSpace(params.ModelPath) == "" {
			return nil, errors.New("model path is empty")
		}
		return &inprocessEngine{params: params}, nil
	}
}

// inprocessEngine owns a loaded go-llama.cpp model.
type inprocessEngine struct {
	params types.StartupParameters

	mu    sync.Mutex
	model *llama.LLama
}

func (e *inprocessEngine) Run() error {
	opts := []llama.ModelOption{
		llama.SetContext(e.params.ContextSize),
	}
	if !e.params.CPU {
		opts = append(opts, llama.SetGPULayers(e.params.GPULayers))
	}
	m, err := llama.New(e.params.ModelPath, opts...)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.model = m
	e.mu.Unlock()
	return nil
}

func (e *inprocessEngine) Shutdown() error {
	e.mu.Lock()
	m := e.model
	e.model = nil
	e.mu.Unlock()
	if m != nil {
		m.Free()
	}
	return nil
}

func (e *inprocessEngine) PID() int { return os.Getpid() }
