package configstore

import "fmt"

// configurationError reports a malformed user-supplied field. Missing fields
// take defaults and never produce this error.
type configurationError struct {
	field string
	value any
}

func (e configurationError) Error() string {
	return fmt.Sprintf("invalid configuration field %q: %v", e.field, e.value)
}

// IsConfigurationError reports whether err came from startup parameter
// validation (return 400, keep state unchanged).
func IsConfigurationError(err error) bool {
	_, ok := err.(configurationError)
	return ok
}
