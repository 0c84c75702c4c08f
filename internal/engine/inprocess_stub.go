//go:build !llama

package engine

// This file provides a no-CGO stub for the in-process engine. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real implementation lives in inprocess.go (tagged 'llama').

import (
	"errors"

	"lmctld/pkg/types"
)

var llamaBuilt = false

// NewInProcessFactory returns a Factory that fails fast: in-process llama
// support is not compiled into this binary. This avoids any mocked behavior
// in production binaries built without CGO support.
func NewInProcessFactory() Factory {
	return func(params types.StartupParameters) (Engine, error) {
		return nil, errors.New("in-process llama support not built (missing 'llama' build tag)")
	}
}
