package controllers

import (
	"log"
	"net/http"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
)

type CommandsController struct {
	tracker portsin.TrackerService
	logger  *log.Logger
}

type executeCommandPayload struct {
	URL     string `json:"url"`
	IsDelay bool   `json:"is_delay,omitempty"`
}

func NewCommandsController(tracker portsin.TrackerService, logger *log.Logger) *CommandsController {
	return &CommandsController{
		tracker: tracker,
		logger:  logger,
	}
}

func (c *CommandsController) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	payload := executeCommandPayload{}
	if appErr := decodeJSONBody(r.Body, &payload, false); appErr != nil {
		writeAppError(w, appErr)
		return
	}

	output, appErr := c.tracker.ExecuteCommand(r.Context(), dto.ExecuteCommandCommand{
		URL:     payload.URL,
		IsDelay: payload.IsDelay,
	})
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/commands", appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}
	if output.Results == nil {
		output.Results = []any{}
	}

	writeJSON(w, http.StatusOK, output)
}
