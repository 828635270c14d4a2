// Package api provides the HTTP surface for fan-out dispatch, model
// registry administration and prompt enhancement.
package api //nolint:revive // package name is intentional

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/askmany/askmany/internal/enhance"
	"github.com/askmany/askmany/internal/observability"
	"github.com/askmany/askmany/internal/store"
	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/pkg/types"
)

// Dispatcher runs one fan-out. *askmany.Dispatcher satisfies it.
type Dispatcher interface {
	DispatchRequest(ctx context.Context, modelIDs []int64, req types.PromptRequest) ([]types.RequestOutcome, error)
}

// Enhancer rewrites one prompt. *enhance.Enhancer satisfies it.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string, typ enhance.Type) (*enhance.Result, error)
}

// Archiver receives finished outcomes for offline retention.
type Archiver interface {
	RecordOutcomes(requestID string, outcomes []types.RequestOutcome)
}

// Handler holds the dependencies shared by all endpoints. Enhancer and
// Archiver are optional; their endpoints degrade when unset.
type Handler struct {
	dispatcher Dispatcher
	store      store.Store
	enhancer   Enhancer
	archiver   Archiver
	logger     *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(dispatcher Dispatcher, st store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dispatcher: dispatcher,
		store:      st,
		logger:     logger,
	}
}

// WithEnhancer attaches the prompt enhancer backing POST /v1/enhance.
func (h *Handler) WithEnhancer(e Enhancer) *Handler {
	h.enhancer = e
	return h
}

// WithArchiver attaches an outcome archiver fed after each dispatch.
func (h *Handler) WithArchiver(a Archiver) *Handler {
	h.archiver = a
	return h
}

// Healthz handles GET /healthz. A handler without a store always
// reports ok; otherwise the store must answer a ping.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Error("store ping failed", "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  "store unreachable",
			})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorResponse is the JSON envelope every endpoint uses for failures.
// The nested shape matches what provider SDK clients already parse.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the message and machine-readable type. Code is set
// only when an upstream supplied one.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response failed", "error", err)
	}
}

// writeError renders any error as the JSON error envelope, mapping
// dispatch errors to their HTTP status.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	de, ok := askerrors.From(err)
	if !ok {
		de = &askerrors.DispatchError{
			StatusCode: http.StatusInternalServerError,
			Message:    err.Error(),
			Type:       "internal_error",
		}
	}

	h.logger.Error("request failed",
		"request_id", observability.RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"type", de.Type,
		"error", de.Message,
	)

	h.writeJSON(w, de.HTTPStatusCode(), ErrorResponse{
		Error: ErrorDetail{
			Message: de.Message,
			Type:    de.Type,
		},
	})
}

// writeBadRequest renders a plain 400 with the given message.
func (h *Handler) writeBadRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    "invalid_request_error",
		},
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
