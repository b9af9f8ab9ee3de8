package api

import (
	"net/http"

	service "github.com/okian/survcast/internal/app"
)

// ModelsDependencies lists the loaded models.
type ModelsDependencies interface {
	Models() []service.ModelInfo
}

// ModelsHandler handles model listing requests.
type ModelsHandler struct {
	deps ModelsDependencies
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps ModelsDependencies) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

// HandleModels handles GET /api/models requests.
func (h *ModelsHandler) HandleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Models())
}
