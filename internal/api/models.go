package api

import (
	"net/http"
	"strconv"

	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/pkg/types"
)

type createModelRequest struct {
	Name          string `json:"name"`
	APIEndpoint   string `json:"api_endpoint"`
	CredentialKey string `json:"credential_key"`
	IsActive      *bool  `json:"is_active,omitempty"`
}

type toggleModelRequest struct {
	Active *bool `json:"active"`
}

// ListModels handles GET /v1/models. ?active=true narrows the listing to
// models eligible for dispatch.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	models, err := h.store.ListModels(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if models == nil {
		models = []types.Model{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// CreateModel handles POST /v1/models. New models default to active.
func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	var req createModelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	model := types.Model{
		Name:          req.Name,
		APIEndpoint:   req.APIEndpoint,
		CredentialKey: req.CredentialKey,
		IsActive:      true,
	}
	if req.IsActive != nil {
		model.IsActive = *req.IsActive
	}
	if err := model.Validate(); err != nil {
		h.writeBadRequest(w, err.Error())
		return
	}

	if err := h.store.CreateModel(r.Context(), &model); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("model registered", "model_id", model.ID, "name", model.Name)
	h.writeJSON(w, http.StatusCreated, model)
}

// ToggleModel handles POST /v1/models/{id}/toggle, flipping a model in or
// out of the active roster without deleting its history.
func (h *Handler) ToggleModel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeBadRequest(w, "invalid model id")
		return
	}

	var req toggleModelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.Active == nil {
		h.writeBadRequest(w, "active is required")
		return
	}

	model, err := h.store.GetModel(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if model == nil {
		h.writeError(w, r, askerrors.NewModelNotFoundError(id))
		return
	}

	if err := h.store.SetModelActive(r.Context(), id, *req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}

	model.IsActive = *req.Active
	h.logger.Info("model toggled", "model_id", id, "active", *req.Active)
	h.writeJSON(w, http.StatusOK, model)
}
