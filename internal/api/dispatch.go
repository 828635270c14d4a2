package api

import (
	"net/http"
	"time"

	"github.com/askmany/askmany/internal/observability"
	"github.com/askmany/askmany/internal/store"
	"github.com/askmany/askmany/pkg/types"
)

type dispatchRequest struct {
	ModelIDs    []int64  `json:"model_ids"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	// Save persists the prompt and the successful outcomes. PromptID
	// attaches the results to an existing prompt row instead of creating
	// a new one.
	Save     bool  `json:"save,omitempty"`
	PromptID int64 `json:"prompt_id,omitempty"`
}

type dispatchResponse struct {
	Outcomes []types.RequestOutcome `json:"outcomes"`
	Tally    types.Tally            `json:"tally"`
	PromptID int64                  `json:"prompt_id,omitempty"`
}

// Dispatch handles POST /v1/dispatch: one prompt fanned out to the
// requested models, blocking until every model reached a terminal state.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req dispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.Prompt == "" {
		h.writeBadRequest(w, "prompt is required")
		return
	}
	if len(req.ModelIDs) == 0 {
		h.writeBadRequest(w, "model_ids is required")
		return
	}

	outcomes, err := h.dispatcher.DispatchRequest(r.Context(), req.ModelIDs, types.PromptRequest{
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{Message: err.Error(), Type: "unavailable"},
		})
		return
	}

	requestID := observability.RequestIDFromContext(r.Context())
	if h.archiver != nil {
		h.archiver.RecordOutcomes(requestID, outcomes)
	}

	resp := dispatchResponse{
		Outcomes: outcomes,
		Tally:    types.TallyOutcomes(outcomes),
	}
	if req.Save && h.store != nil {
		resp.PromptID = h.saveOutcomes(r, req, outcomes)
	}

	h.logger.Info("dispatch request served",
		"request_id", requestID,
		"models", len(req.ModelIDs),
		"succeeded", resp.Tally.Succeeded,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// saveOutcomes persists the prompt and its successful outcomes. Storage
// failures are logged, not surfaced: the caller already has the results.
func (h *Handler) saveOutcomes(r *http.Request, req dispatchRequest, outcomes []types.RequestOutcome) int64 {
	ctx := r.Context()

	promptID := req.PromptID
	if promptID == 0 {
		prompt := store.Prompt{Text: req.Prompt}
		if err := h.store.CreatePrompt(ctx, &prompt); err != nil {
			h.logger.Warn("prompt save failed", "error", err)
			return 0
		}
		promptID = prompt.ID
	}

	for i := range outcomes {
		out := &outcomes[i]
		if !out.Succeeded {
			continue
		}
		res := store.Result{
			PromptID:     promptID,
			ModelID:      out.ModelID,
			ModelName:    out.ModelName,
			ResponseText: out.ResponseText,
			ResponseTime: out.Elapsed,
			TokensUsed:   out.TokensUsed,
		}
		if err := h.store.SaveResult(ctx, &res); err != nil {
			h.logger.Warn("result save failed", "model_id", out.ModelID, "error", err)
		}
	}
	return promptID
}
