package controllers

import (
	"log"
	"net/http"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
)

type HealthController struct {
	useCase portsin.GetHealthUseCase
	logger  *log.Logger
}

func NewHealthController(useCase portsin.GetHealthUseCase, logger *log.Logger) *HealthController {
	return &HealthController{
		useCase: useCase,
		logger:  logger,
	}
}

// GetHealth always answers 200; a degraded status only means delivery is
// paused, the agent still accepts events.
func (c *HealthController) GetHealth(w http.ResponseWriter, r *http.Request) {
	output, appErr := c.useCase.Execute(r.Context(), dto.GetHealthCommand{})
	if appErr != nil {
		logRequestError(c.logger, r, "/healthz", appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, output)
}

func logRequestError(logger *log.Logger, r *http.Request, path string, code string, message string) {
	if logger == nil {
		return
	}
	logger.Printf("request error path=%s method=%s code=%s message=%s", path, r.Method, code, message)
}
