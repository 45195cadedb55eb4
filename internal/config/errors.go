package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedConfig is matched by every MalformedConfigError via errors.Is.
	ErrMalformedConfig = errors.New("malformed configuration")
	// ErrInteractiveUnsupported is returned by strict validation when
	// interactive mode is requested on a host that cannot provide it.
	ErrInteractiveUnsupported = errors.New("interactive mode is not supported on this platform; use headless")
)

// MalformedConfigError reports a present setting whose value cannot be
// parsed into its declared type.
type MalformedConfigError struct {
	Origin string
	Key    string
	Value  string
	Err    error
}

func (e *MalformedConfigError) Error() string {
	switch {
	case e.Key == "":
		return fmt.Sprintf("%s in %s: %v", ErrMalformedConfig, e.Origin, e.Err)
	case e.Origin == "":
		return fmt.Sprintf("%s: %s=%q: %v", ErrMalformedConfig, e.Key, e.Value, e.Err)
	default:
		return fmt.Sprintf("%s in %s: %s=%q: %v", ErrMalformedConfig, e.Origin, e.Key, e.Value, e.Err)
	}
}

func (e *MalformedConfigError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedConfig.
func (e *MalformedConfigError) Is(target error) bool {
	return target == ErrMalformedConfig
}
