package api

import (
	"net/http"
)

// Switch turns recognition on and off.
type Switch interface {
	Enabled() bool
	SetEnabled(enabled bool)
}

// RecognitionHandler serves GET and PUT /api/recognition.
type RecognitionHandler struct {
	sw Switch
}

// NewRecognitionHandler creates a RecognitionHandler for sw.
func NewRecognitionHandler(sw Switch) *RecognitionHandler {
	return &RecognitionHandler{sw: sw}
}

type recognitionState struct {
	Enabled *bool `json:"enabled"`
}

// ServeHTTP implements http.Handler.
func (h *RecognitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req recognitionState
		if err := jsonAPI.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.sw.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enabled := h.sw.Enabled()
	writeJSON(w, http.StatusOK, recognitionState{Enabled: &enabled})
}
