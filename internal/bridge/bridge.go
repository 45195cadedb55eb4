package bridge

import (
	"context"

	"github.com/eugenenazirov/ijbridge/internal/config"
	"github.com/eugenenazirov/ijbridge/internal/source"
)

// StartupParams is everything the bridge needs to launch the toolkit.
type StartupParams struct {
	Source          source.Source
	BaseDirectory   string
	LegacyMode      bool
	Mode            config.ExecutionMode
	LaunchArguments []string
}

// ParamsFrom maps a resolved settings record onto startup parameters. It
// applies no defaults of its own.
func ParamsFrom(settings config.Resolved) StartupParams {
	return StartupParams{
		Source:          settings.Source(),
		BaseDirectory:   settings.BaseDirectory(),
		LegacyMode:      settings.LegacyModeEnabled(),
		Mode:            settings.ExecutionMode(),
		LaunchArguments: settings.LaunchArguments(),
	}
}

// Bridge starts the JVM-hosted toolkit.
type Bridge interface {
	// Start launches the toolkit described by params. Failures to locate,
	// download or launch the source are reported as *StartupError.
	Start(ctx context.Context, params StartupParams) (Handle, error)
}

// Handle is a running toolkit instance.
type Handle interface {
	// ComponentVersions reports installed component versions keyed by
	// group:artifact. Components the bridge cannot query are omitted.
	ComponentVersions() map[string]string
	Close(ctx context.Context) error
}

// Func adapts a function to the Bridge interface.
type Func func(ctx context.Context, params StartupParams) (Handle, error)

// Start calls f.
func (f Func) Start(ctx context.Context, params StartupParams) (Handle, error) {
	return f(ctx, params)
}
