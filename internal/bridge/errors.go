package bridge

import (
	"fmt"
	"sort"
	"strings"
)

// StartupError reports that the bridge could not locate, download or launch
// the classified source.
type StartupError struct {
	Op     string
	Source string
	Err    error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("bridge %s %s: %v", e.Op, e.Source, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Violation is a component whose installed version is below the minimum.
// Installed is empty when the component was not reported at all.
type Violation struct {
	Component string
	Minimum   string
	Installed string
}

// VersionError lists components that do not meet MinimumVersions.
type VersionError struct {
	Violations []Violation
}

func (e *VersionError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		installed := v.Installed
		if installed == "" {
			installed = "not found"
		}
		lines = append(lines, fmt.Sprintf("%s : %s (installed: %s)", v.Component, v.Minimum, installed))
	}
	sort.Strings(lines)
	return "toolkit requires the following component versions:\n\t" + strings.Join(lines, "\n\t") +
		"\ncheck the runtime_source setting"
}
