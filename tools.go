//go:build tools

package tools

// Pins the swag CLI used to regenerate the OpenAPI docs.
import (
	_ "github.com/swaggo/swag/cmd/swag"
)
