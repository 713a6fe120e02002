package controllers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	"karte/internal/domain/entities"
	apperrors "karte/internal/shared_kernel/errors"
)

const (
	queryWait          = "wait"
	defaultWaitTimeout = 30 * time.Second
)

type EventsController struct {
	tracker     portsin.TrackerService
	waitTimeout time.Duration
	logger      *log.Logger
}

type trackEventPayload struct {
	EventName string         `json:"event_name"`
	Values    map[string]any `json:"values,omitempty"`
	Retryable *bool          `json:"retryable,omitempty"`
}

type trackViewPayload struct {
	ViewName string         `json:"view_name"`
	ViewID   string         `json:"view_id,omitempty"`
	Title    string         `json:"title,omitempty"`
	Values   map[string]any `json:"values,omitempty"`
}

type identifyPayload struct {
	UserID string         `json:"user_id"`
	Values map[string]any `json:"values,omitempty"`
}

type trackEventResponse struct {
	dto.TrackEventOutput
	Delivered *bool `json:"delivered,omitempty"`
}

// NewEventsController serves the tracking endpoints. waitTimeout bounds how
// long a ?wait=true request blocks for the delivery result.
func NewEventsController(tracker portsin.TrackerService, waitTimeout time.Duration, logger *log.Logger) *EventsController {
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	return &EventsController{
		tracker:     tracker,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

func (c *EventsController) TrackEvent(w http.ResponseWriter, r *http.Request) {
	payload := trackEventPayload{}
	if appErr := decodeJSONBody(r.Body, &payload, false); appErr != nil {
		writeAppError(w, appErr)
		return
	}
	payload.EventName = strings.TrimSpace(payload.EventName)
	if payload.EventName == "" {
		writeAppError(w, apperrors.NewValidation(
			"invalid_request",
			"event_name is required",
			map[string]any{"field": "event_name"},
		))
		return
	}

	var opts []entities.EventOption
	if payload.Retryable != nil {
		opts = append(opts, entities.WithRetryable(*payload.Retryable))
	}
	c.track(w, r, "/v1/events", entities.NewEvent(payload.EventName, payload.Values, opts...))
}

func (c *EventsController) TrackView(w http.ResponseWriter, r *http.Request) {
	payload := trackViewPayload{}
	if appErr := decodeJSONBody(r.Body, &payload, false); appErr != nil {
		writeAppError(w, appErr)
		return
	}
	payload.ViewName = strings.TrimSpace(payload.ViewName)
	if payload.ViewName == "" {
		writeAppError(w, apperrors.NewValidation(
			"invalid_request",
			"view_name is required",
			map[string]any{"field": "view_name"},
		))
		return
	}

	c.track(w, r, "/v1/views", entities.NewViewEvent(payload.ViewName, payload.ViewID, payload.Title, payload.Values))
}

func (c *EventsController) Identify(w http.ResponseWriter, r *http.Request) {
	payload := identifyPayload{}
	if appErr := decodeJSONBody(r.Body, &payload, false); appErr != nil {
		writeAppError(w, appErr)
		return
	}
	payload.UserID = strings.TrimSpace(payload.UserID)
	if payload.UserID == "" {
		writeAppError(w, apperrors.NewValidation(
			"invalid_request",
			"user_id is required",
			map[string]any{"field": "user_id"},
		))
		return
	}

	c.track(w, r, "/v1/identify", entities.NewIdentifyEvent(payload.UserID, payload.Values))
}

func (c *EventsController) track(w http.ResponseWriter, r *http.Request, path string, event entities.Event) {
	wait, appErr := parseWait(r)
	if appErr != nil {
		writeAppError(w, appErr)
		return
	}

	var delivered chan bool
	command := dto.TrackEventCommand{Event: event}
	if wait {
		delivered = make(chan bool, 1)
		command.Completion = func(ok bool) {
			delivered <- ok
		}
	}

	output, appErr := c.tracker.Track(r.Context(), command)
	if appErr != nil {
		logRequestError(c.logger, r, path, appErr.Code, appErr.Message)
		writeAppError(w, appErr)
		return
	}

	response := trackEventResponse{TrackEventOutput: output}
	if !wait {
		writeJSON(w, http.StatusAccepted, response)
		return
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), c.waitTimeout)
	defer cancel()
	select {
	case ok := <-delivered:
		response.Delivered = &ok
		writeJSON(w, http.StatusOK, response)
	case <-waitCtx.Done():
		writeJSON(w, http.StatusAccepted, response)
	}
}

func parseWait(r *http.Request) (bool, *apperrors.AppError) {
	raw := strings.TrimSpace(r.URL.Query().Get(queryWait))
	if raw == "" {
		return false, nil
	}
	wait, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.NewValidation(
			"invalid_request",
			"wait must be a boolean",
			map[string]any{"field": queryWait},
		)
	}
	return wait, nil
}
