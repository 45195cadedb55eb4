package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/ijbridge/internal/config"
)

var signalNotify = signal.Notify

// settingsFlags are the global flags that override settings values.
type settingsFlags struct {
	configFile    string
	runtimeSource []string
	baseDir       string
	legacy        bool
	legacySet     bool
	mode          string
	transfer      string
	launchArgs    string
	logLevel      string
}

// explicit converts the flags given on the command line into a partial record.
func (f *settingsFlags) explicit() config.Partial {
	var p config.Partial
	switch len(f.runtimeSource) {
	case 0:
	case 1:
		p.RuntimeSource = config.StringValue(f.runtimeSource[0])
	default:
		p.RuntimeSource = config.ListValue(f.runtimeSource...)
	}
	if f.baseDir != "" {
		p.RuntimeBaseDirectory = &f.baseDir
	}
	if f.legacySet {
		legacy := f.legacy
		p.LegacyModeEnabled = &legacy
	}
	if f.mode != "" {
		mode := config.ExecutionMode(f.mode)
		p.ExecutionMode = &mode
	}
	if f.transfer != "" {
		transfer := config.TransferMode(f.transfer)
		p.TransferSelectionMode = &transfer
	}
	if f.launchArgs != "" {
		p.RuntimeLaunchArguments = config.StringValue(f.launchArgs)
	}
	return p
}

func (f *settingsFlags) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		ConfigFile:        f.configFile,
		SearchDefaultFile: true,
		Explicit:          f.explicit(),
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ijbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	kingpinApp := kingpin.New("ijbridge", "Resolve ImageJ bridge settings and start the toolkit runtime")
	kingpinApp.UsageWriter(stdout)

	flags := &settingsFlags{}
	kingpinApp.Flag("config", "Path to a YAML or TOML settings file").StringVar(&flags.configFile)
	kingpinApp.Flag("runtime-source", "Installation directory, version, or group:artifact[:version] coordinate (repeat for a coordinate list)").
		StringsVar(&flags.runtimeSource)
	kingpinApp.Flag("base-dir", "Directory the toolkit treats as its home").StringVar(&flags.baseDir)
	kingpinApp.Flag("legacy", "Include the ImageJ legacy layer (--no-legacy to disable)").
		IsSetByUser(&flags.legacySet).BoolVar(&flags.legacy)
	kingpinApp.Flag("mode", "Execution mode").EnumVar(&flags.mode, string(config.ModeHeadless), string(config.ModeInteractive))
	kingpinApp.Flag("transfer", "Transfer selection mode").EnumVar(&flags.transfer, string(config.TransferActive), string(config.TransferPrompt))
	kingpinApp.Flag("launch-args", "Extra JVM arguments, split on whitespace").StringVar(&flags.launchArgs)
	kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").Default("info").StringVar(&flags.logLevel)

	showCmd := newShowCommand(kingpinApp, flags, stdout)
	validateCmd := newValidateCommand(kingpinApp, flags, stdout)
	writeCmd := newWriteConfigCommand(kingpinApp, flags, stdout)
	launchCmd := newLaunchCommand(kingpinApp, flags, stdout)
	serveCmd := newServeCommand(kingpinApp, flags)

	selected, err := kingpinApp.Parse(args)
	if err != nil {
		return err
	}

	switch selected {
	case showCmd.name:
		return showCmd.run()
	case validateCmd.name:
		return validateCmd.run()
	case writeCmd.name:
		return writeCmd.run()
	case launchCmd.name:
		return launchCmd.run()
	case serveCmd.name:
		return serveCmd.run()
	default:
		return fmt.Errorf("unknown command %q", selected)
	}
}

// waitForSignal blocks until the process is asked to stop.
func waitForSignal(logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("received signal", zap.String("signal", sig.String()))
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger, cleanup ...func(context.Context) error) {
	waitForSignal(logger)
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}

	for _, fn := range cleanup {
		if err := fn(ctx); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
	}
}
