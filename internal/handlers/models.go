package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MegaGrindStone/chat-ui/internal/models"
)

type modelResponse struct {
	models.Model
	SizeLabel string `json:"size_label"`
}

// HandleModels lists the model catalog as JSON. When the backend cannot list its models the built-in
// fallback list is returned.
func (m Main) HandleModels(w http.ResponseWriter, r *http.Request) {
	ms := m.catalog.Models(r.Context())

	res := make([]modelResponse, len(ms))
	for i, model := range ms {
		res[i] = modelResponse{
			Model:     model,
			SizeLabel: model.SizeClass.Info().Label,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		m.logger.Error("Failed to encode models", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleSetActive toggles whether a model is offered for selection. It expects the form fields name
// and active (a boolean).
func (m Main) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	active, err := strconv.ParseBool(r.FormValue("active"))
	if err != nil {
		http.Error(w, "active must be a boolean", http.StatusBadRequest)
		return
	}

	m.catalog.SetActive(name, active)
	m.logger.Info("Model activation changed", slog.String("model", name), slog.Bool("active", active))

	w.WriteHeader(http.StatusNoContent)
}
