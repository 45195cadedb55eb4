package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/ijbridge/internal/application"
	"github.com/eugenenazirov/ijbridge/internal/bridge"
	"github.com/eugenenazirov/ijbridge/internal/config"
	"github.com/eugenenazirov/ijbridge/internal/logging"
	"github.com/eugenenazirov/ijbridge/internal/platform"
	"github.com/eugenenazirov/ijbridge/internal/session"
	"github.com/eugenenazirov/ijbridge/internal/storage"
)

func resolveSettings(flags *settingsFlags, logger *zap.Logger) (config.Resolved, error) {
	loaded, err := config.Load(flags.loadOptions())
	if err != nil {
		return config.Resolved{}, err
	}
	return config.NewResolver(platform.Detect(), config.WithLogger(logger)).Resolve(loaded)
}

type showCommand struct {
	name  string
	flags *settingsFlags
	out   io.Writer
}

func newShowCommand(app *kingpin.Application, flags *settingsFlags, out io.Writer) *showCommand {
	cmd := app.Command("show", "Print the resolved settings as YAML")
	return &showCommand{name: cmd.FullCommand(), flags: flags, out: out}
}

func (c *showCommand) run() error {
	logger, err := logging.New(c.flags.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	resolved, err := resolveSettings(c.flags, logger)
	if err != nil {
		return err
	}

	src := resolved.Source()
	fmt.Fprintf(c.out, "# runtime source: %s (%s)\n", src.Endpoint(), src.Kind)
	if resolved.ExecutionModeOverridden() {
		fmt.Fprintf(c.out, "# execution mode %s is not supported on this host, starting %s\n",
			resolved.RequestedExecutionMode(), resolved.ExecutionMode())
	}
	return config.Encode(c.out, resolved.Partial())
}

type validateCommand struct {
	name   string
	flags  *settingsFlags
	out    io.Writer
	strict bool
}

func newValidateCommand(app *kingpin.Application, flags *settingsFlags, out io.Writer) *validateCommand {
	c := &validateCommand{flags: flags, out: out}
	cmd := app.Command("validate", "Check that the settings resolve")
	cmd.Flag("strict", "Fail instead of falling back to headless mode").BoolVar(&c.strict)
	c.name = cmd.FullCommand()
	return c
}

func (c *validateCommand) run() error {
	logger, err := logging.New(c.flags.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	loaded, err := config.Load(c.flags.loadOptions())
	if err != nil {
		return err
	}
	caps := platform.Detect()
	if c.strict {
		if err := config.ValidateStrict(loaded, caps); err != nil {
			return err
		}
	}
	if _, err := config.NewResolver(caps, config.WithLogger(logger)).Resolve(loaded); err != nil {
		return err
	}

	fmt.Fprintln(c.out, "settings are valid")
	return nil
}

type writeConfigCommand struct {
	name   string
	flags  *settingsFlags
	out    io.Writer
	output string
	force  bool
}

func newWriteConfigCommand(app *kingpin.Application, flags *settingsFlags, out io.Writer) *writeConfigCommand {
	c := &writeConfigCommand{flags: flags, out: out}
	cmd := app.Command("write-config", "Write a commented settings file from the current overrides")
	cmd.Flag("output", "Destination file (defaults to the per-user settings file)").StringVar(&c.output)
	cmd.Flag("force", "Overwrite an existing file").BoolVar(&c.force)
	c.name = cmd.FullCommand()
	return c
}

func (c *writeConfigCommand) run() error {
	path := c.output
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}

	if !c.force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}

	loaded, err := config.Load(c.flags.loadOptions())
	if err != nil {
		return err
	}
	if _, err := config.NewResolver(platform.Detect()).Resolve(loaded); err != nil {
		return err
	}
	if err := config.WriteFile(path, loaded); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "wrote settings to %s\n", path)
	return nil
}

type launchCommand struct {
	name             string
	flags            *settingsFlags
	out              io.Writer
	launcher         string
	startupTimeout   time.Duration
	skipVersionCheck bool
}

func newLaunchCommand(app *kingpin.Application, flags *settingsFlags, out io.Writer) *launchCommand {
	c := &launchCommand{flags: flags, out: out}
	cmd := app.Command("launch", "Start the toolkit and keep it running until interrupted")
	cmd.Flag("launcher", "Launcher executable").Default(bridge.DefaultLauncher).StringVar(&c.launcher)
	cmd.Flag("startup-timeout", "Maximum time to wait for the toolkit to become ready").Default("5m").DurationVar(&c.startupTimeout)
	cmd.Flag("skip-version-check", "Do not enforce minimum component versions").BoolVar(&c.skipVersionCheck)
	c.name = cmd.FullCommand()
	return c
}

func (c *launchCommand) run() error {
	logger, err := logging.New(c.flags.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	resolved, err := resolveSettings(c.flags, logger)
	if err != nil {
		return err
	}

	opts := []session.Option{session.WithLogger(logger)}
	if c.skipVersionCheck {
		opts = append(opts, session.WithoutVersionCheck())
	}
	sess := session.New(bridge.NewCommandBridge(c.launcher, bridge.WithBridgeLogger(logger)), opts...)

	ctx, cancel := context.WithTimeout(context.Background(), c.startupTimeout)
	defer cancel()

	handle, err := sess.Initialize(ctx, resolved)
	if err != nil {
		return err
	}

	versions := handle.ComponentVersions()
	fmt.Fprintf(c.out, "toolkit ready (%s, %s)\n", resolved.Source().Endpoint(), resolved.ExecutionMode())
	for _, component := range slices.Sorted(maps.Keys(versions)) {
		fmt.Fprintf(c.out, "  %s %s\n", component, versions[component])
	}

	waitForSignal(logger)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	return sess.Teardown(closeCtx)
}

type serveCommand struct {
	name       string
	flags      *settingsFlags
	server     application.ServerConfig
	launcher   string
	initialize bool
}

func newServeCommand(app *kingpin.Application, flags *settingsFlags) *serveCommand {
	c := &serveCommand{flags: flags, server: application.DefaultServerConfig()}
	defaults := c.server

	cmd := app.Command("serve", "Serve the settings and session HTTP API backed by the settings file")
	cmd.Flag("port", "HTTP port exposed by the service").Default(defaults.Port).StringVar(&c.server.Port)
	cmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").
		Default(fmt.Sprint(defaults.RateLimitRPS)).Float64Var(&c.server.RateLimitRPS)
	cmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").
		Default(fmt.Sprint(defaults.RateLimitBurst)).IntVar(&c.server.RateLimitBurst)
	cmd.Flag("request-logging", "Log every request").Default("true").BoolVar(&c.server.EnableRequestLogging)
	cmd.Flag("shutdown-grace", "Graceful shutdown period").Default(defaults.ShutdownGracePeriod.String()).
		DurationVar(&c.server.ShutdownGracePeriod)
	cmd.Flag("launcher", "Launcher executable").Default(bridge.DefaultLauncher).StringVar(&c.launcher)
	cmd.Flag("init", "Start the toolkit as soon as the server is up").BoolVar(&c.initialize)
	c.name = cmd.FullCommand()
	return c
}

func (c *serveCommand) run() error {
	logger, err := logging.New(c.flags.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	path := c.flags.configFile
	if path == "" {
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}
	if !c.flags.explicit().IsZero() {
		logger.Warn("setting flags are ignored by serve, edit the settings file or use PUT /api/settings",
			zap.String("path", path))
	}
	for _, key := range config.Keys {
		if name := config.EnvVar(key); os.Getenv(name) != "" {
			logger.Warn("environment settings are ignored by serve", zap.String("variable", name), zap.String("path", path))
		}
	}

	app, err := application.New(c.server, application.Dependencies{
		Storage:  storage.NewFileStorage(path),
		Bridge:   bridge.NewCommandBridge(c.launcher, bridge.WithBridgeLogger(logger)),
		Platform: platform.Detect(),
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	if err := app.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	if c.initialize {
		go func() {
			if _, err := app.InitializeSession(context.Background()); err != nil {
				logger.Error("session initialization failed", zap.Error(err))
			}
		}()
	}

	shutdown(app.Server(), c.server.ShutdownGracePeriod, logger, app.Close)
	return nil
}
