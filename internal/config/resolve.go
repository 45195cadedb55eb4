package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/ijbridge/internal/platform"
	"github.com/eugenenazirov/ijbridge/internal/source"
)

// Resolved is a fully populated, platform-adjusted settings record. It has
// no mutation path; accessors return copies of slice data.
type Resolved struct {
	source                source.Source
	baseDirectory         string
	legacyModeEnabled     bool
	requestedMode         ExecutionMode
	executionMode         ExecutionMode
	transferSelectionMode TransferMode
	launchArguments       []string
}

// Source returns the classified runtime source.
func (r Resolved) Source() source.Source {
	out := r.source
	out.Coordinates = append([]source.Coordinate(nil), r.source.Coordinates...)
	return out
}

// BaseDirectory returns the runtime base directory.
func (r Resolved) BaseDirectory() string { return r.baseDirectory }

// LegacyModeEnabled reports whether the legacy compatibility layer is requested.
func (r Resolved) LegacyModeEnabled() bool { return r.legacyModeEnabled }

// ExecutionMode returns the effective mode after the platform override.
func (r Resolved) ExecutionMode() ExecutionMode { return r.executionMode }

// RequestedExecutionMode returns the mode asked for before the platform override.
func (r Resolved) RequestedExecutionMode() ExecutionMode { return r.requestedMode }

// ExecutionModeOverridden reports whether the platform override changed the mode.
func (r Resolved) ExecutionModeOverridden() bool { return r.requestedMode != r.executionMode }

// TransferSelectionMode returns the transfer policy selector.
func (r Resolved) TransferSelectionMode() TransferMode { return r.transferSelectionMode }

// LaunchArguments returns the normalized JVM launch arguments.
func (r Resolved) LaunchArguments() []string {
	return append([]string{}, r.launchArguments...)
}

// Partial returns a complete partial record that resolves back to r on the
// same platform. The requested execution mode is kept, not the effective one.
func (r Resolved) Partial() Partial {
	single, list := r.source.Raw()
	src := StringValue(single)
	if r.source.Kind == source.KindCoordinateList {
		src = ListValue(list...)
	}
	return Partial{
		RuntimeSource:          src,
		RuntimeBaseDirectory:   ptr(r.baseDirectory),
		LegacyModeEnabled:      ptr(r.legacyModeEnabled),
		ExecutionMode:          ptr(r.requestedMode),
		TransferSelectionMode:  ptr(r.transferSelectionMode),
		RuntimeLaunchArguments: ListValue(r.launchArguments...),
	}
}

// Resolver applies defaults, source classification, the platform override
// and launch argument normalization.
type Resolver struct {
	platform platform.Capabilities
	getwd    func() (string, error)
	logger   *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithWorkingDirectory replaces os.Getwd as the source of the default base directory.
func WithWorkingDirectory(getwd func() (string, error)) ResolverOption {
	return func(r *Resolver) {
		r.getwd = getwd
	}
}

// WithLogger records platform overrides on logger.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver for the given host capabilities.
func NewResolver(caps platform.Capabilities, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		platform: caps,
		getwd:    os.Getwd,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is shorthand for NewResolver(caps).Resolve(p).
func Resolve(p Partial, caps platform.Capabilities) (Resolved, error) {
	return NewResolver(caps).Resolve(p)
}

// Resolve produces the resolved record. It returns *source.InvalidSpecError
// when the runtime source matches none of the accepted shapes.
func (r *Resolver) Resolve(p Partial) (Resolved, error) {
	var out Resolved

	rawSource := StringValue(DefaultRuntimeSource)
	if p.RuntimeSource != nil {
		rawSource = p.RuntimeSource
	}
	src, err := classify(*rawSource)
	if err != nil {
		return Resolved{}, err
	}
	out.source = src

	if p.RuntimeBaseDirectory != nil {
		out.baseDirectory = *p.RuntimeBaseDirectory
	} else {
		wd, err := r.getwd()
		if err != nil {
			return Resolved{}, fmt.Errorf("determine working directory: %w", err)
		}
		out.baseDirectory = wd
	}

	out.legacyModeEnabled = DefaultLegacyModeEnabled
	if p.LegacyModeEnabled != nil {
		out.legacyModeEnabled = *p.LegacyModeEnabled
	}

	out.requestedMode = DefaultExecutionMode
	if p.ExecutionMode != nil {
		out.requestedMode = *p.ExecutionMode
	}
	out.executionMode = out.requestedMode
	if out.requestedMode == ModeInteractive && r.platform != nil && !r.platform.SupportsInteractive() {
		out.executionMode = ModeHeadless
		r.logger.Info("execution mode overridden",
			zap.String("requested", string(out.requestedMode)),
			zap.String("effective", string(out.executionMode)),
		)
	}

	out.transferSelectionMode = DefaultTransferSelectionMode
	if p.TransferSelectionMode != nil {
		out.transferSelectionMode = *p.TransferSelectionMode
	}

	out.launchArguments = []string{}
	if p.RuntimeLaunchArguments != nil {
		out.launchArguments = normalizeArguments(*p.RuntimeLaunchArguments)
	}

	return out, nil
}

// ValidateStrict resolves p and reports the platform override as
// ErrInteractiveUnsupported instead of applying it silently.
func ValidateStrict(p Partial, caps platform.Capabilities) error {
	resolved, err := NewResolver(caps, WithWorkingDirectory(func() (string, error) { return ".", nil })).Resolve(p)
	if err != nil {
		return err
	}
	if resolved.ExecutionModeOverridden() {
		return ErrInteractiveUnsupported
	}
	return nil
}

func classify(v Values) (source.Source, error) {
	if v.IsList {
		return source.ClassifyList(v.List)
	}
	return source.Classify(v.Single)
}

func normalizeArguments(v Values) []string {
	if !v.IsList {
		return append([]string{}, strings.Fields(v.Single)...)
	}
	args := make([]string, 0, len(v.List))
	for _, item := range v.List {
		if item = strings.TrimSpace(item); item != "" {
			args = append(args, item)
		}
	}
	return args
}
