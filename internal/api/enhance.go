package api

import (
	"errors"
	"net/http"

	"github.com/askmany/askmany/internal/enhance"
)

type enhanceRequest struct {
	Prompt string `json:"prompt"`
	Type   string `json:"type,omitempty"`
}

// EnhancePrompt handles POST /v1/enhance, rewriting the submitted prompt
// through the configured enhancement model.
func (h *Handler) EnhancePrompt(w http.ResponseWriter, r *http.Request) {
	if h.enhancer == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{Message: "prompt enhancement is not configured", Type: "unavailable"},
		})
		return
	}

	var req enhanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	typ, known := enhance.ParseType(req.Type)
	if !known {
		h.logger.Warn("unknown enhancement type, using general", "type", req.Type)
	}

	result, err := h.enhancer.Enhance(r.Context(), req.Prompt, typ)
	if err != nil {
		if errors.Is(err, enhance.ErrPromptTooShort) || errors.Is(err, enhance.ErrPromptTooLong) {
			h.writeBadRequest(w, err.Error())
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
