package config

import (
	"fmt"
	"strings"
)

// Persisted keys.
const (
	KeyRuntimeSource          = "runtime_source"
	KeyRuntimeBaseDirectory   = "runtime_base_directory"
	KeyLegacyModeEnabled      = "legacy_mode_enabled"
	KeyExecutionMode          = "execution_mode"
	KeyTransferSelectionMode  = "transfer_selection_mode"
	KeyRuntimeLaunchArguments = "runtime_launch_arguments"
)

// Keys lists the persisted keys in document order.
var Keys = []string{
	KeyRuntimeSource,
	KeyRuntimeBaseDirectory,
	KeyLegacyModeEnabled,
	KeyExecutionMode,
	KeyTransferSelectionMode,
	KeyRuntimeLaunchArguments,
}

const (
	// DefaultRuntimeSource is the artifact launched when nothing else is configured.
	DefaultRuntimeSource = "net.imagej:imagej"
	// DefaultLegacyModeEnabled enables the original ImageJ compatibility layer.
	DefaultLegacyModeEnabled = true
	// DefaultExecutionMode is used when no mode is requested.
	DefaultExecutionMode = ModeInteractive
	// DefaultTransferSelectionMode is used when no transfer mode is requested.
	DefaultTransferSelectionMode = TransferActive
)

// ExecutionMode selects whether the JVM shows its own user interface.
type ExecutionMode string

const (
	ModeHeadless    ExecutionMode = "headless"
	ModeInteractive ExecutionMode = "interactive"
)

// ParseExecutionMode parses one of the two mode literals, ignoring case and
// surrounding whitespace.
func ParseExecutionMode(raw string) (ExecutionMode, error) {
	switch mode := ExecutionMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeHeadless, ModeInteractive:
		return mode, nil
	default:
		return "", fmt.Errorf("must be %q or %q", ModeHeadless, ModeInteractive)
	}
}

// TransferMode selects how viewer data is chosen for exchange with the bridge.
type TransferMode string

const (
	// TransferActive uses the viewer's active element without asking.
	TransferActive TransferMode = "active"
	// TransferPrompt asks the user to pick an element.
	TransferPrompt TransferMode = "prompt"
)

// ParseTransferMode parses one of the two transfer literals. Boolean literals
// are accepted for files written by older plugin versions, where true meant
// "use the active layer".
func ParseTransferMode(raw string) (TransferMode, error) {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case string(TransferActive), "true":
		return TransferActive, nil
	case string(TransferPrompt), "false":
		return TransferPrompt, nil
	default:
		return "", fmt.Errorf("must be %q or %q", TransferActive, TransferPrompt)
	}
}

// Values holds a setting that may be written either as one string or as a
// list of strings.
type Values struct {
	Single string
	List   []string
	IsList bool
}

// StringValue wraps a single string.
func StringValue(s string) *Values {
	return &Values{Single: s}
}

// ListValue wraps a list of strings.
func ListValue(items ...string) *Values {
	return &Values{List: append([]string(nil), items...), IsList: true}
}

func (v Values) clone() *Values {
	out := v
	if v.List != nil {
		out.List = append([]string(nil), v.List...)
	}
	return &out
}

func (v Values) String() string {
	if v.IsList {
		return "[" + strings.Join(v.List, ", ") + "]"
	}
	return v.Single
}

// Partial is a settings record in which any field may be unset (nil).
// The Loader produces it; Resolve turns it into a Resolved record.
type Partial struct {
	RuntimeSource          *Values
	RuntimeBaseDirectory   *string
	LegacyModeEnabled      *bool
	ExecutionMode          *ExecutionMode
	TransferSelectionMode  *TransferMode
	RuntimeLaunchArguments *Values
}

// IsZero reports whether no field is set.
func (p Partial) IsZero() bool {
	return p.RuntimeSource == nil &&
		p.RuntimeBaseDirectory == nil &&
		p.LegacyModeEnabled == nil &&
		p.ExecutionMode == nil &&
		p.TransferSelectionMode == nil &&
		p.RuntimeLaunchArguments == nil
}

// Merge returns base with every field set in override replacing it.
func Merge(base, override Partial) Partial {
	out := base
	if override.RuntimeSource != nil {
		out.RuntimeSource = override.RuntimeSource.clone()
	}
	if override.RuntimeBaseDirectory != nil {
		out.RuntimeBaseDirectory = ptr(*override.RuntimeBaseDirectory)
	}
	if override.LegacyModeEnabled != nil {
		out.LegacyModeEnabled = ptr(*override.LegacyModeEnabled)
	}
	if override.ExecutionMode != nil {
		out.ExecutionMode = ptr(*override.ExecutionMode)
	}
	if override.TransferSelectionMode != nil {
		out.TransferSelectionMode = ptr(*override.TransferSelectionMode)
	}
	if override.RuntimeLaunchArguments != nil {
		out.RuntimeLaunchArguments = override.RuntimeLaunchArguments.clone()
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
