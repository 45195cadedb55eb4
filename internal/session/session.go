package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eugenenazirov/ijbridge/internal/bridge"
	"github.com/eugenenazirov/ijbridge/internal/config"
)

// State is the initializer's position in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrAlreadyInitialized is matched by AlreadyInitializedError via errors.Is.
	ErrAlreadyInitialized = errors.New("session already initialized")
	// ErrTornDown is returned by Initialize after Teardown.
	ErrTornDown = errors.New("session torn down")
)

// AlreadyInitializedError is returned when Initialize is called after the
// session has settled in Ready or Failed.
type AlreadyInitializedError struct {
	State State
}

func (e *AlreadyInitializedError) Error() string {
	return fmt.Sprintf("%s (state %s)", ErrAlreadyInitialized, e.State)
}

// Is reports whether target is ErrAlreadyInitialized.
func (e *AlreadyInitializedError) Is(target error) bool {
	return target == ErrAlreadyInitialized
}

// Session owns one bridge startup attempt. Create a new Session for a new
// attempt; a settled session never starts the bridge again.
type Session struct {
	bridge        bridge.Bridge
	logger        *zap.Logger
	minimums      map[string]string
	checkVersions bool

	mu       sync.Mutex
	state    State
	done     chan struct{}
	handle   bridge.Handle
	err      error
	tornDown bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMinimumVersions replaces bridge.MinimumVersions for the post-start check.
func WithMinimumVersions(minimums map[string]string) Option {
	return func(s *Session) {
		s.minimums = minimums
	}
}

// WithoutVersionCheck skips the post-start component version check.
func WithoutVersionCheck() Option {
	return func(s *Session) {
		s.checkVersions = false
	}
}

// New creates an uninitialized session for b.
func New(b bridge.Bridge, opts ...Option) *Session {
	s := &Session{
		bridge:        b,
		logger:        zap.NewNop(),
		minimums:      bridge.MinimumVersions,
		checkVersions: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize starts the bridge with settings. The first caller performs the
// startup; callers arriving while it runs wait for and share its result;
// callers arriving afterwards get *AlreadyInitializedError. Bridge errors are
// returned unwrapped and are not retried.
func (s *Session) Initialize(ctx context.Context, settings config.Resolved) (bridge.Handle, error) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return nil, ErrTornDown
	}

	switch s.state {
	case StateUninitialized:
		s.state = StateInitializing
		s.done = make(chan struct{})
		s.mu.Unlock()
		return s.initialize(ctx, settings)
	case StateInitializing:
		done := s.done
		s.mu.Unlock()
		select {
		case <-done:
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.handle, s.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	default:
		state := s.state
		s.mu.Unlock()
		return nil, &AlreadyInitializedError{State: state}
	}
}

func (s *Session) initialize(ctx context.Context, settings config.Resolved) (handle bridge.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.settle(nil, fmt.Errorf("bridge startup panicked: %v", r))
			panic(r)
		}
		s.settle(handle, err)
	}()

	params := bridge.ParamsFrom(settings)
	s.logger.Info("initializing session",
		zap.String("source", params.Source.String()),
		zap.String("mode", string(params.Mode)),
		zap.Bool("legacy", params.LegacyMode),
		zap.Bool("mode_overridden", settings.ExecutionModeOverridden()),
	)

	handle, err = s.bridge.Start(ctx, params)
	if err != nil {
		return nil, err
	}

	if s.checkVersions {
		if verr := bridge.CheckVersions(handle.ComponentVersions(), s.minimums); verr != nil {
			if cerr := handle.Close(context.WithoutCancel(ctx)); cerr != nil {
				s.logger.Warn("close bridge after version check failed", zap.Error(cerr))
			}
			return nil, verr
		}
	}

	return handle, nil
}

func (s *Session) settle(handle bridge.Handle, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handle, s.err = handle, err
	if err != nil {
		s.state = StateFailed
		s.logger.Error("session initialization failed", zap.Error(err))
	} else {
		s.state = StateReady
		s.logger.Info("session ready")
	}
	close(s.done)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle returns the running bridge handle, or nil unless the session is Ready.
func (s *Session) Handle() bridge.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Err returns the startup error of a Failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Teardown closes the bridge handle, waiting for an in-flight startup to
// settle first. Afterwards Initialize returns ErrTornDown.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return nil
	}
	s.tornDown = true
	done := s.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle == nil {
		return nil
	}
	s.logger.Info("tearing down session")
	if err := handle.Close(ctx); err != nil {
		return fmt.Errorf("close bridge: %w", err)
	}
	return nil
}
