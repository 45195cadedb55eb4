package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/eugenenazirov/ijbridge/internal/bridge"
	"github.com/eugenenazirov/ijbridge/internal/config"
	"github.com/eugenenazirov/ijbridge/internal/platform"
	"github.com/eugenenazirov/ijbridge/internal/session"
	"github.com/eugenenazirov/ijbridge/internal/source"
	"github.com/eugenenazirov/ijbridge/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const restartMessage = "Settings saved. Restart the viewer for the changes to take effect."

// Handler wires settings storage and the runtime session into HTTP handlers.
type Handler struct {
	storage  storage.Storage
	session  *session.Session
	resolver *config.Resolver
	platform platform.Capabilities

	clock func() time.Time

	mu                sync.RWMutex
	settingsUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithResolver overrides the resolver used to resolve stored settings.
func WithResolver(resolver *config.Resolver) HandlerOption {
	return func(h *Handler) {
		h.resolver = resolver
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.Storage, sess *session.Session, caps platform.Capabilities, opts ...HandlerOption) *Handler {
	h := &Handler{
		storage:  store,
		session:  sess,
		platform: caps,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.resolver == nil {
		h.resolver = config.NewResolver(caps)
	}
	h.settingsUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:       "ok",
		SessionState: h.session.State().String(),
		Timestamp:    h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	_ = r
	stored, err := h.storage.GetSettings()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resolved, err := h.resolver.Resolve(stored)
	if err != nil {
		writeSettingsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.newSettingsResponse(resolved, ""))
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	update, err := config.FromValues(req, "request")
	if err != nil {
		writeSettingsError(w, err)
		return
	}
	if update.IsZero() {
		writeError(w, http.StatusBadRequest, "Invalid settings", "request contains no known settings")
		return
	}

	stored, err := h.storage.GetSettings()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	merged := config.Merge(stored, update)
	// Only a mode the user is setting now is rejected; a stored or default
	// interactive mode is overridden silently on resolve.
	if update.ExecutionMode != nil {
		if err := config.ValidateStrict(merged, h.platform); err != nil {
			writeSettingsError(w, err)
			return
		}
	}
	resolved, err := h.resolver.Resolve(merged)
	if err != nil {
		writeSettingsError(w, err)
		return
	}

	if err := h.storage.SetSettings(merged); err != nil {
		writeInternalError(w, err)
		return
	}
	h.markSettingsUpdated()

	message := ""
	if h.session.State() != session.StateUninitialized {
		message = restartMessage
	}
	writeJSON(w, http.StatusOK, h.newSettingsResponse(resolved, message))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	_ = r
	writeJSON(w, http.StatusOK, h.newSessionResponse())
}

func (h *Handler) handleInitSession(w http.ResponseWriter, r *http.Request) {
	stored, err := h.storage.GetSettings()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	// Settings errors must stop here, before any bridge startup.
	resolved, err := h.resolver.Resolve(stored)
	if err != nil {
		writeSettingsError(w, err)
		return
	}

	if _, err := h.session.Initialize(r.Context(), resolved); err != nil {
		var (
			startupErr *bridge.StartupError
			versionErr *bridge.VersionError
		)
		switch {
		case errors.Is(err, session.ErrAlreadyInitialized):
			writeError(w, http.StatusConflict, "Already initialized", err.Error(),
				"Restart the viewer to start a new session")
		case errors.As(err, &startupErr):
			writeError(w, http.StatusBadGateway, "Bridge startup failed", err.Error(),
				"Check the runtime_source setting and network access")
		case errors.As(err, &versionErr):
			writeError(w, http.StatusBadGateway, "Unsupported toolkit version", err.Error(),
				"Choose a newer runtime_source")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "Initialization interrupted", err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, h.newSessionResponse())
}

func (h *Handler) newSettingsResponse(resolved config.Resolved, message string) settingsResponse {
	src := resolved.Source()
	single, list := src.Raw()

	doc := settingsDocument{
		RuntimeBaseDirectory:   resolved.BaseDirectory(),
		LegacyModeEnabled:      resolved.LegacyModeEnabled(),
		ExecutionMode:          string(resolved.ExecutionMode()),
		TransferSelectionMode:  string(resolved.TransferSelectionMode()),
		RuntimeLaunchArguments: resolved.LaunchArguments(),
	}
	if src.Kind == source.KindCoordinateList {
		doc.RuntimeSource = list
	} else {
		doc.RuntimeSource = single
	}

	return settingsResponse{
		Settings:                doc,
		SourceKind:              src.Kind.String(),
		SourceEndpoint:          src.Endpoint(),
		RequestedExecutionMode:  string(resolved.RequestedExecutionMode()),
		ExecutionModeOverridden: resolved.ExecutionModeOverridden(),
		UpdatedAt:               h.currentSettingsUpdatedAt(),
		RestartRequired:         message != "",
		Message:                 message,
	}
}

func (h *Handler) newSessionResponse() sessionResponse {
	resp := sessionResponse{State: h.session.State().String()}
	if err := h.session.Err(); err != nil {
		resp.Error = err.Error()
	}
	if handle := h.session.Handle(); handle != nil {
		resp.Components = handle.ComponentVersions()
	}
	return resp
}

func (h *Handler) currentSettingsUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settingsUpdatedAt
}

func (h *Handler) markSettingsUpdated() {
	h.mu.Lock()
	h.settingsUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type settingsDocument struct {
	RuntimeSource          any      `json:"runtime_source"`
	RuntimeBaseDirectory   string   `json:"runtime_base_directory"`
	LegacyModeEnabled      bool     `json:"legacy_mode_enabled"`
	ExecutionMode          string   `json:"execution_mode"`
	TransferSelectionMode  string   `json:"transfer_selection_mode"`
	RuntimeLaunchArguments []string `json:"runtime_launch_arguments"`
}

type settingsResponse struct {
	Settings                settingsDocument `json:"settings"`
	SourceKind              string           `json:"sourceKind"`
	SourceEndpoint          string           `json:"sourceEndpoint"`
	RequestedExecutionMode  string           `json:"requestedExecutionMode"`
	ExecutionModeOverridden bool             `json:"executionModeOverridden"`
	UpdatedAt               time.Time        `json:"updatedAt"`
	RestartRequired         bool             `json:"restartRequired"`
	Message                 string           `json:"message,omitempty"`
}

type sessionResponse struct {
	State      string            `json:"state"`
	Error      string            `json:"error,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

type healthResponse struct {
	Status       string    `json:"status"`
	SessionState string    `json:"sessionState"`
	Timestamp    time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrMalformedConfig):
		writeError(w, http.StatusBadRequest, "Invalid settings", err.Error())
	case errors.Is(err, source.ErrInvalidSpec):
		writeError(w, http.StatusBadRequest, "Invalid runtime source", err.Error(),
			"Use a directory, a version such as 2.3.0, or group:artifact[:version] coordinates")
	case errors.Is(err, config.ErrInteractiveUnsupported):
		writeError(w, http.StatusBadRequest, "Invalid execution mode", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
