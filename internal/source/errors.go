package source

import (
	"errors"
	"fmt"
)

// ErrInvalidSpec is matched by every InvalidSpecError via errors.Is.
var ErrInvalidSpec = errors.New("invalid runtime source")

// InvalidSpecError reports a runtime source that matches none of the
// accepted shapes.
type InvalidSpecError struct {
	Value  string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidSpec, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", ErrInvalidSpec, e.Value, e.Reason)
}

// Is reports whether target is ErrInvalidSpec.
func (e *InvalidSpecError) Is(target error) bool {
	return target == ErrInvalidSpec
}
