package platform

import (
	"os"
	"runtime"
	"sync"
)

// OS name constants for runtime.GOOS comparisons.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// Capabilities answers questions about what the host platform can do.
type Capabilities interface {
	SupportsInteractive() bool
}

// Host reports the capabilities of the running process.
type Host struct {
	goos   string
	getenv func(string) string
}

// NewHost returns capabilities for runtime.GOOS.
func NewHost() Host {
	return Host{goos: runtime.GOOS, getenv: os.Getenv}
}

// SupportsInteractive reports whether the JVM can drive its own UI from this
// process. macOS requires the AWT event loop on the main thread, which the
// viewer already owns, so only headless startup works there. Linux hosts
// without a display server cannot show the UI either.
func (h Host) SupportsInteractive() bool {
	switch h.goos {
	case Darwin:
		return false
	case Windows:
		return true
	default:
		if h.getenv == nil {
			return true
		}
		return h.getenv("DISPLAY") != "" || h.getenv("WAYLAND_DISPLAY") != ""
	}
}

// Fixed is a Capabilities with a constant answer, for tests and for callers
// that already know the answer.
type Fixed bool

// SupportsInteractive returns the fixed value.
func (f Fixed) SupportsInteractive() bool {
	return bool(f)
}

var hostOnce = sync.OnceValue(func() Capabilities {
	return NewHost()
})

// Detect returns the host capabilities, computed once per process.
func Detect() Capabilities {
	return hostOnce()
}
