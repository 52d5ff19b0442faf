package api

import (
	"net/http"

	"github.com/relaybase/relaybase/internal/log"
)

// modelsHandler advertises the models of configured providers.
type modelsHandler struct {
	relay  relayClient
	logger log.Logger
}

func (h *modelsHandler) list(w http.ResponseWriter, _ *http.Request) {
	models := h.relay.ListModels()
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"models": models,
		"count":  len(models),
	})
}
