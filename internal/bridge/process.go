package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/eugenenazirov/ijbridge/internal/source"
)

// DefaultLauncher is the launcher executable looked up on PATH.
const DefaultLauncher = "imagej-launcher"

// DefaultWaitDelay bounds how long output pipes held open by children of an
// exited launcher are drained before they are closed.
const DefaultWaitDelay = 2 * time.Second

// CommandBridge starts the toolkit through a launcher executable.
//
// The launcher receives JVM options, then "--", then toolkit options. It
// reports installed components on stdout as "version <group:artifact> <version>"
// lines and prints "ready" once the toolkit is up. Output after "ready" is
// logged at debug level.
//
// The launcher runs in its own process group so termination and kill
// signals reach the JVM and anything else it started.
type CommandBridge struct {
	launcher  string
	env       []string
	logger    *zap.Logger
	waitDelay time.Duration
}

// CommandOption configures a CommandBridge.
type CommandOption func(*CommandBridge)

// WithEnv appends KEY=VALUE entries to the launcher environment.
func WithEnv(env ...string) CommandOption {
	return func(b *CommandBridge) {
		b.env = append(b.env, env...)
	}
}

// WithBridgeLogger sets the logger for launcher output.
func WithBridgeLogger(logger *zap.Logger) CommandOption {
	return func(b *CommandBridge) {
		b.logger = logger
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) CommandOption {
	return func(b *CommandBridge) {
		b.waitDelay = d
	}
}

// NewCommandBridge returns a bridge that runs launcher. An empty launcher
// selects DefaultLauncher.
func NewCommandBridge(launcher string, opts ...CommandOption) *CommandBridge {
	if launcher == "" {
		launcher = DefaultLauncher
	}
	b := &CommandBridge{launcher: launcher, logger: zap.NewNop(), waitDelay: DefaultWaitDelay}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Args builds the launcher command line for params.
func (b *CommandBridge) Args(params StartupParams) []string {
	args := make([]string, 0, len(params.LaunchArguments)+8)
	if params.BaseDirectory != "" {
		args = append(args, "-Dimagej2.dir="+params.BaseDirectory)
	}
	args = append(args, params.LaunchArguments...)
	args = append(args, "--")

	switch params.Source.Kind {
	case source.KindPath:
		args = append(args, "--app-dir", params.Source.Path)
	case source.KindVersion:
		args = append(args, "--version", params.Source.Version)
	case source.KindCoordinate, source.KindCoordinateList:
		for _, coord := range params.Source.Coordinates {
			args = append(args, "--coordinate", coord.String())
		}
	}

	args = append(args, "--mode", string(params.Mode), "--legacy="+strconv.FormatBool(params.LegacyMode))
	return args
}

// Start runs the launcher and waits until it reports ready, exits, or ctx is
// done. The launched process outlives ctx once ready.
func (b *CommandBridge) Start(ctx context.Context, params StartupParams) (Handle, error) {
	endpoint := params.Source.Endpoint()
	fail := func(err error) error {
		return &StartupError{Op: "launch", Source: endpoint, Err: err}
	}

	cmd := exec.Command(b.launcher, b.Args(params)...)
	if params.BaseDirectory != "" {
		cmd.Dir = params.BaseDirectory
	}
	cmd.Env = append(os.Environ(), b.env...)
	cmd.WaitDelay = b.waitDelay
	setProcessGroup(cmd)
	stderr := &zapio.Writer{Log: b.logger.With(zap.String("stream", "stderr")), Level: zapcore.DebugLevel}
	cmd.Stderr = stderr

	stdout, stdoutWriter := io.Pipe()
	cmd.Stdout = stdoutWriter

	b.logger.Info("starting toolkit",
		zap.String("launcher", b.launcher),
		zap.String("source", params.Source.String()),
		zap.String("mode", string(params.Mode)),
	)
	if err := cmd.Start(); err != nil {
		return nil, fail(err)
	}

	p := &process{cmd: cmd, stderr: stderr, logger: b.logger, exited: make(chan struct{})}
	ready := make(chan map[string]string, 1)
	scanned := make(chan struct{})
	go func() {
		p.scan(stdout, ready)
		close(scanned)
	}()
	go func() {
		p.waitErr = cmd.Wait()
		_ = stdoutWriter.Close()
		<-scanned
		_ = stderr.Close()
		close(p.exited)
	}()

	select {
	case versions := <-ready:
		p.versions = versions
		return p, nil
	case <-p.exited:
		if p.waitErr != nil {
			return nil, fail(fmt.Errorf("launcher exited before ready: %w", p.waitErr))
		}
		return nil, fail(errors.New("launcher exited before ready"))
	case <-ctx.Done():
		_ = killProcessGroup(cmd.Process)
		<-p.exited
		return nil, fail(ctx.Err())
	}
}

type process struct {
	cmd      *exec.Cmd
	stderr   io.Closer
	logger   *zap.Logger
	versions map[string]string
	exited   chan struct{}
	waitErr  error
	closeMu  sync.Mutex
}

func (p *process) scan(stdout io.Reader, ready chan<- map[string]string) {
	versions := make(map[string]string)
	announced := false

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !announced {
			fields := strings.Fields(line)
			switch {
			case len(fields) == 3 && fields[0] == "version":
				versions[fields[1]] = fields[2]
				continue
			case line == "ready":
				announced = true
				ready <- versions
				continue
			}
		}
		p.logger.Debug("launcher output", zap.String("line", line))
	}
	// Keep draining so the launcher never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)
}

// ComponentVersions returns the versions reported before "ready".
func (p *process) ComponentVersions() map[string]string {
	out := make(map[string]string, len(p.versions))
	for k, v := range p.versions {
		out[k] = v
	}
	return out
}

// Close terminates the launcher group and waits for it to exit, killing the
// group if ctx ends first.
func (p *process) Close(ctx context.Context) error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := terminateProcessGroup(p.cmd.Process); err != nil {
		_ = killProcessGroup(p.cmd.Process)
	}

	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		if err := killProcessGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill launcher: %w", err)
		}
		<-p.exited
		return ctx.Err()
	}
}
