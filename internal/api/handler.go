package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/eugenenazirov/udc-experiments/internal/experiment"
	"github.com/eugenenazirov/udc-experiments/internal/registry"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler wires the named-config registry into HTTP handlers.
type Handler struct {
	registry registry.Registry

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(reg registry.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: reg,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	_ = r
	configs := h.registry.List()
	resp := namedConfigsResponse{
		Configs: configs,
		Count:   len(configs),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h.resolve(w, []string{name}, nil)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	h.resolve(w, req.Named, experiment.Overrides(req.Updates))
}

func (h *Handler) resolve(w http.ResponseWriter, names []string, updates experiment.Overrides) {
	params, err := h.registry.Resolve(names, updates)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrUnknownConfig):
			writeError(w, http.StatusNotFound, "Unknown named config", err.Error())
		case errors.Is(err, experiment.ErrInvalidOverrides), errors.Is(err, experiment.ErrInvalidParams):
			writeError(w, http.StatusBadRequest, "Invalid config", err.Error())
		case errors.Is(err, experiment.ErrNoLayout):
			writeError(w, http.StatusUnprocessableEntity, "Missing directory layout", err.Error(),
				"Add a layout for the system under `layouts` in the configuration file")
		default:
			writeInternalError(w, err)
		}
		return
	}

	if names == nil {
		names = []string{}
	}
	resp := configResponse{
		Named:          names,
		Config:         params,
		CheckpointPath: params.CheckpointPath(),
		RunPath:        params.RunPath(),
		ResolvedAt:     h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type resolveRequest struct {
	Named   []string       `json:"named"`
	Updates map[string]any `json:"updates"`
}

type configResponse struct {
	Named          []string          `json:"named"`
	Config         experiment.Params `json:"config"`
	CheckpointPath string            `json:"checkpointPath"`
	RunPath        string            `json:"runPath"`
	ResolvedAt     time.Time         `json:"resolvedAt"`
}

type namedConfigsResponse struct {
	Configs []experiment.Named `json:"configs"`
	Count   int                `json:"count"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
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

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
