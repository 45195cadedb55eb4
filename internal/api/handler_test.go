package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/ijbridge/internal/bridge"
	"github.com/eugenenazirov/ijbridge/internal/config"
	"github.com/eugenenazirov/ijbridge/internal/platform"
	"github.com/eugenenazirov/ijbridge/internal/session"
	"github.com/eugenenazirov/ijbridge/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeHandle struct {
	versions map[string]string
}

func (h *fakeHandle) ComponentVersions() map[string]string { return h.versions }

func (h *fakeHandle) Close(context.Context) error { return nil }

type fakeBridge struct {
	calls  atomic.Int32
	err    error
	params bridge.StartupParams
}

func (b *fakeBridge) Start(_ context.Context, params bridge.StartupParams) (bridge.Handle, error) {
	b.calls.Add(1)
	b.params = params
	if b.err != nil {
		return nil, b.err
	}
	versions := make(map[string]string, len(bridge.MinimumVersions))
	for component, minimum := range bridge.MinimumVersions {
		versions[component] = minimum
	}
	versions["net.imagej:imagej-common"] = "2.1.0"
	return &fakeHandle{versions: versions}, nil
}

type testEnv struct {
	router http.Handler
	clock  *controllableClock
	store  *storage.MemoryStorage
	bridge *fakeBridge
}

func setupTestRouter(t *testing.T, caps platform.Capabilities, initial config.Partial) *testEnv {
	t.Helper()

	store := storage.NewMemoryStorage(initial)
	fb := &fakeBridge{}
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))
	resolver := config.NewResolver(caps, config.WithWorkingDirectory(func() (string, error) { return "/work", nil }))

	handler := NewHandler(store, session.New(fb), caps, WithClock(clock.Now), WithResolver(resolver))
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false), WithRateLimit(0, 0))

	return &testEnv{router: router, clock: clock, store: store, bridge: fb}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	switch v := body.(type) {
	case nil:
	case string:
		payload = []byte(v)
	default:
		var err error
		if payload, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(t, platform.Fixed(true), config.Partial{})

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	resp := decode[healthResponse](t, rec)
	if resp.Status != "ok" || resp.SessionState != "uninitialized" {
		t.Fatalf("unexpected health response %+v", resp)
	}
	if !resp.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("expected timestamp from clock, got %s", resp.Timestamp)
	}
}

func TestGetSettingsResolvesDefaults(t *testing.T) {
	env := setupTestRouter(t, platform.Fixed(false), config.Partial{})

	rec := env.do(t, http.MethodGet, "/api/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[settingsResponse](t, rec)
	if resp.Settings.RuntimeSource != config.DefaultRuntimeSource || resp.SourceKind != "coordinate" {
		t.Fatalf("unexpected source %v (%s)", resp.Settings.RuntimeSource, resp.SourceKind)
	}
	if resp.Settings.RuntimeBaseDirectory != "/work" {
		t.Fatalf("unexpected base directory %q", resp.Settings.RuntimeBaseDirectory)
	}
	if resp.Settings.ExecutionMode != "headless" || resp.RequestedExecutionMode != "interactive" || !resp.ExecutionModeOverridden {
		t.Fatalf("expected observable platform override, got %+v", resp)
	}
	if resp.Settings.RuntimeLaunchArguments == nil {
		t.Fatalf("expected launch arguments to be an empty list")
	}
}

func TestPutSettingsPersistsUpdate(t *testing.T) {
	env := setupTestRouter(t, platform.Fixed(true), config.Partial{})
	env.clock.Advance(time.Minute)

	rec := env.do(t, http.MethodPut, "/api/settings", map[string]any{
		"runtime_source":           []string{"net.imagej:imagej:2.3.0", "net.imagej:imagej-legacy"},
		"transfer_selection_mode":  "prompt",
		"runtime_launch_arguments": "-Xmx4g  -Dfoo=bar",
		"unknown_key":              42,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[settingsResponse](t, rec)
	if resp.SourceKind != "coordinate-list" || resp.Settings.TransferSelectionMode != "prompt" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got := resp.Settings.RuntimeLaunchArguments; len(got) != 2 || got[0] != "-Xmx4g" || got[1] != "-Dfoo=bar" {
		t.Fatalf("unexpected launch arguments %v", got)
	}
	if !resp.UpdatedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected updatedAt to advance, got %s", resp.UpdatedAt)
	}
	if resp.RestartRequired {
		t.Fatalf("restart is not required before the session starts")
	}

	stored, err := env.store.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings returned error: %v", err)
	}
	if stored.RuntimeSource == nil || !stored.RuntimeSource.IsList {
		t.Fatalf("expected list source to be stored, got %+v", stored.RuntimeSource)
	}
	if stored.ExecutionMode != nil {
		t.Fatalf("fields absent from the request must stay unset")
	}
}

func TestPutSettingsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		caps platform.Fixed
		body any
	}{
		{name: "InvalidJSON", caps: true, body: "{"},
		{name: "NoKnownKeys", caps: true, body: map[string]any{"color": "blue"}},
		{name: "MalformedMode", caps: true, body: map[string]any{"execution_mode": "windowed"}},
		{name: "EmptySource", caps: true, body: map[string]any{"runtime_source": ""}},
		{name: "BrokenCoordinate", caps: true, body: map[string]any{"runtime_source": []string{"net.imagej:"}}},
		{name: "InteractiveUnsupported", caps: false, body: map[string]any{"execution_mode": "interactive"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestRouter(t, tc.caps, config.Partial{})

			rec := env.do(t, http.MethodPut, "/api/settings", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
			}

			stored, _ := env.store.GetSettings()
			if !stored.IsZero() {
				t.Fatalf("invalid update must not be stored, got %+v", stored)
			}
		})
	}
}

func TestPutSettingsOverridesUnrequestedModeSilently(t *testing.T) {
	interactive := config.ModeInteractive
	tests := []struct {
		name    string
		initial config.Partial
		body    map[string]any
	}{
		{name: "DefaultMode", body: map[string]any{"transfer_selection_mode": "prompt"}},
		{name: "StoredMode", initial: config.Partial{ExecutionMode: &interactive}, body: map[string]any{"legacy_mode_enabled": false}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestRouter(t, platform.Fixed(false), tc.initial)

			rec := env.do(t, http.MethodPut, "/api/settings", tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}

			resp := decode[settingsResponse](t, rec)
			if resp.Settings.ExecutionMode != "headless" || resp.RequestedExecutionMode != "interactive" || !resp.ExecutionModeOverridden {
				t.Fatalf("expected silent override to headless, got %+v", resp)
			}

			stored, _ := env.store.GetSettings()
			if stored.IsZero() {
				t.Fatalf("expected update to be stored")
			}
		})
	}
}

func TestInitSession(t *testing.T) {
	legacy := false
	env := setupTestRouter(t, platform.Fixed(true), config.Partial{
		RuntimeSource:     config.StringValue("/opt/Fiji.app"),
		LegacyModeEnabled: &legacy,
	})

	rec := env.do(t, http.MethodPost, "/api/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[sessionResponse](t, rec)
	if resp.State != "ready" || resp.Components["net.imagej:imagej-common"] != "2.1.0" {
		t.Fatalf("unexpected session response %+v", resp)
	}
	if env.bridge.params.Source.Path != "/opt/Fiji.app" || env.bridge.params.LegacyMode {
		t.Fatalf("unexpected startup params %+v", env.bridge.params)
	}

	rec = env.do(t, http.MethodPost, "/api/session", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 on second init, got %d", rec.Code)
	}
	if env.bridge.calls.Load() != 1 {
		t.Fatalf("expected one bridge startup, got %d", env.bridge.calls.Load())
	}

	rec = env.do(t, http.MethodPut, "/api/settings", map[string]any{"legacy_mode_enabled": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if settings := decode[settingsResponse](t, rec); !settings.RestartRequired || settings.Message == "" {
		t.Fatalf("expected restart notice after session start, got %+v", settings)
	}

	rec = env.do(t, http.MethodGet, "/api/session", nil)
	if resp := decode[sessionResponse](t, rec); resp.State != "ready" {
		t.Fatalf("unexpected session state %q", resp.State)
	}
}

func TestInitSessionBridgeFailure(t *testing.T) {
	env := setupTestRouter(t, platform.Fixed(true), config.Partial{})
	env.bridge.err = &bridge.StartupError{Op: "download", Source: "net.imagej:imagej", Err: errors.New("offline")}

	rec := env.do(t, http.MethodPost, "/api/session", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/session", nil)
	resp := decode[sessionResponse](t, rec)
	if resp.State != "failed" || resp.Error == "" {
		t.Fatalf("expected failed session with error, got %+v", resp)
	}
}

func TestInitSessionInvalidSettingsSkipsBridge(t *testing.T) {
	env := setupTestRouter(t, platform.Fixed(true), config.Partial{RuntimeSource: config.ListValue()})

	rec := env.do(t, http.MethodPost, "/api/session", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if env.bridge.calls.Load() != 0 {
		t.Fatalf("bridge must not start with invalid settings")
	}

	rec = env.do(t, http.MethodGet, "/api/session", nil)
	if resp := decode[sessionResponse](t, rec); resp.State != "uninitialized" {
		t.Fatalf("expected session to stay uninitialized, got %q", resp.State)
	}
}
