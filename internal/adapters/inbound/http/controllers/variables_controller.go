package controllers

import (
	"log"
	"net/http"
	"strings"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	apperrors "karte/internal/shared_kernel/errors"
)

type VariablesController struct {
	service portsin.VariablesService
	logger  *log.Logger
}

func NewVariablesController(service portsin.VariablesService, logger *log.Logger) *VariablesController {
	return &VariablesController{
		service: service,
		logger:  logger,
	}
}

// FetchVariables requests a refresh. The result arrives asynchronously with
// the next collection response.
func (c *VariablesController) FetchVariables(w http.ResponseWriter, r *http.Request) {
	if appErr := c.service.FetchVariables(r.Context(), dto.FetchVariablesCommand{}); appErr != nil {
		logRequestError(c.logger, r, "/v1/variables/fetch", appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"requested": true})
}

// GetVariables reads ?name=a&name=b or a comma separated ?name=a,b.
func (c *VariablesController) GetVariables(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0)
	for _, raw := range r.URL.Query()["name"] {
		for _, name := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				names = append(names, trimmed)
			}
		}
	}
	if len(names) == 0 {
		writeAppError(w, apperrors.NewValidation(
			"invalid_request",
			"name query parameter is required",
			map[string]any{"field": "name"},
		))
		return
	}

	output, appErr := c.service.GetVariables(r.Context(), dto.GetVariablesQuery{Names: names})
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/variables", appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, output)
}
