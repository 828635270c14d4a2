package api

import "net/http"

// RegisterRoutes mounts every endpoint on the mux. The serve command
// mounts /metrics separately.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)

	mux.HandleFunc("POST /v1/dispatch", h.Dispatch)
	mux.HandleFunc("POST /v1/enhance", h.EnhancePrompt)

	mux.HandleFunc("GET /v1/models", h.ListModels)
	mux.HandleFunc("POST /v1/models", h.CreateModel)
	mux.HandleFunc("POST /v1/models/{id}/toggle", h.ToggleModel)
}
