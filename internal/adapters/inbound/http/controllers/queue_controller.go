package controllers

import (
	"log"
	"net/http"
	"time"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	apperrors "karte/internal/shared_kernel/errors"
)

type QueueController struct {
	overviewUseCase portsin.GetQueueOverviewUseCase
	logger          *log.Logger
}

func NewQueueController(overviewUseCase portsin.GetQueueOverviewUseCase, logger *log.Logger) *QueueController {
	return &QueueController{
		overviewUseCase: overviewUseCase,
		logger:          logger,
	}
}

func (c *QueueController) GetOverview(w http.ResponseWriter, r *http.Request) {
	if c.overviewUseCase == nil {
		writeAppError(w, apperrors.NewInternal(
			"queue_overview_use_case_missing",
			"queue overview use case is required",
			nil,
		))
		return
	}

	output, appErr := c.overviewUseCase.Execute(r.Context(), dto.GetQueueOverviewQuery{Now: time.Now().UTC()})
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/queue/overview", appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, output)
}
