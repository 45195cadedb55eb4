package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/ijbridge/internal/config"
	"github.com/eugenenazirov/ijbridge/internal/source"
)

func writeLauncher(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("launcher scripts require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "launcher.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write launcher: %v", err)
	}
	return path
}

func testParams(t *testing.T) StartupParams {
	t.Helper()

	src, err := source.Classify("net.imagej:imagej:2.3.0")
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	return StartupParams{
		Source:          src,
		BaseDirectory:   t.TempDir(),
		LegacyMode:      true,
		Mode:            config.ModeHeadless,
		LaunchArguments: []string{"-Xmx1g"},
	}
}

func TestCommandBridgeStartAndClose(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	launcher := writeLauncher(t, `
echo "$@" > "$ARGS_FILE"
echo "version net.imagej:imagej-common 2.1.0"
echo "version org.scijava:scijava-common 2.94.2"
echo ready
echo "toolkit log line"
trap 'exit 0' INT TERM
while true; do sleep 0.05; done
`)

	b := NewCommandBridge(launcher, WithEnv("ARGS_FILE="+argsFile), WithBridgeLogger(zaptest.NewLogger(t)))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handle, err := b.Start(ctx, testParams(t))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	versions := handle.ComponentVersions()
	if versions["net.imagej:imagej-common"] != "2.1.0" || versions["org.scijava:scijava-common"] != "2.94.2" {
		t.Fatalf("unexpected component versions %v", versions)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if !strings.Contains(string(data), "--coordinate net.imagej:imagej:2.3.0") {
		t.Fatalf("launcher did not receive coordinate: %s", data)
	}

	if err := handle.Close(ctx); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := handle.Close(ctx); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}

func TestCommandBridgeLauncherExitsEarly(t *testing.T) {
	launcher := writeLauncher(t, "echo 'cannot resolve artifact' >&2\nexit 3\n")

	_, err := NewCommandBridge(launcher).Start(context.Background(), testParams(t))
	var startupErr *StartupError
	if !errors.As(err, &startupErr) {
		t.Fatalf("expected *StartupError, got %v", err)
	}
	if startupErr.Source != "net.imagej:imagej:2.3.0" {
		t.Fatalf("unexpected source in error: %q", startupErr.Source)
	}
}

func TestCommandBridgeMissingLauncher(t *testing.T) {
	_, err := NewCommandBridge(filepath.Join(t.TempDir(), "missing")).Start(context.Background(), testParams(t))
	var startupErr *StartupError
	if !errors.As(err, &startupErr) {
		t.Fatalf("expected *StartupError, got %v", err)
	}
}

func TestCommandBridgeStartCanceled(t *testing.T) {
	launcher := writeLauncher(t, "while true; do sleep 0.05; done\n")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewCommandBridge(launcher).Start(ctx, testParams(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCommandBridgeStartCanceledWithBackgroundChild(t *testing.T) {
	// The backgrounded sleep inherits stdout and outlives the shell unless the
	// whole group is killed.
	launcher := writeLauncher(t, "sleep 4 &\nwhile true; do sleep 0.05; done\n")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	began := time.Now()
	_, err := NewCommandBridge(launcher).Start(ctx, testParams(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(began); elapsed > 2*time.Second {
		t.Fatalf("Start returned after %v, want prompt return on cancel", elapsed)
	}
}

func TestCommandBridgeCloseWithBackgroundChild(t *testing.T) {
	launcher := writeLauncher(t, `
sleep 30 &
echo ready
trap 'exit 0' INT TERM
while true; do sleep 0.05; done
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handle, err := NewCommandBridge(launcher, WithBridgeLogger(zaptest.NewLogger(t))).Start(ctx, testParams(t))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	began := time.Now()
	if err := handle.Close(ctx); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if elapsed := time.Since(began); elapsed > 1500*time.Millisecond {
		t.Fatalf("Close returned after %v, want background child terminated with the launcher", elapsed)
	}
}

func TestCommandBridgeCloseKillsUnresponsiveLauncher(t *testing.T) {
	launcher := writeLauncher(t, `
trap '' INT TERM
echo ready
while true; do sleep 0.05; done
`)

	handle, err := NewCommandBridge(launcher).Start(context.Background(), testParams(t))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	began := time.Now()
	if err := handle.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(began); elapsed > 2*time.Second {
		t.Fatalf("Close returned after %v, want kill once ctx expired", elapsed)
	}
}

func TestCommandBridgeEarlyExitBoundedByWaitDelay(t *testing.T) {
	// The orphaned sleep keeps stdout open after the launcher exits.
	launcher := writeLauncher(t, "sleep 5 &\necho 'no runtime' >&2\nexit 3\n")

	began := time.Now()
	_, err := NewCommandBridge(launcher, WithWaitDelay(100*time.Millisecond)).Start(context.Background(), testParams(t))
	var startupErr *StartupError
	if !errors.As(err, &startupErr) {
		t.Fatalf("expected *StartupError, got %v", err)
	}
	if elapsed := time.Since(began); elapsed > 2*time.Second {
		t.Fatalf("Start returned after %v, want return once the wait delay expired", elapsed)
	}
}
