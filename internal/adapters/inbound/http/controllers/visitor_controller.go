package controllers

import (
	"log"
	"net/http"

	portsin "karte/internal/application/ports/in"
)

// VisitorController exposes identity and consent state.
type VisitorController struct {
	tracker portsin.TrackerService
	logger  *log.Logger
}

func NewVisitorController(tracker portsin.TrackerService, logger *log.Logger) *VisitorController {
	return &VisitorController{
		tracker: tracker,
		logger:  logger,
	}
}

func (c *VisitorController) RenewVisitorID(w http.ResponseWriter, r *http.Request) {
	output, appErr := c.tracker.RenewVisitorID(r.Context())
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/visitor/renew", appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, output)
}

func (c *VisitorController) OptOut(w http.ResponseWriter, r *http.Request) {
	output, appErr := c.tracker.OptOut(r.Context())
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/opt-out", appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, output)
}

func (c *VisitorController) OptIn(w http.ResponseWriter, r *http.Request) {
	output, appErr := c.tracker.OptIn(r.Context())
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/opt-in", appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, output)
}
