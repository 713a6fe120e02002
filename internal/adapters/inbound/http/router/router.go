package router

import (
	"net/http"

	"karte/internal/adapters/inbound/http/controllers"
)

type Dependencies struct {
	HealthController    *controllers.HealthController
	SwaggerController   *controllers.SwaggerController
	EventsController    *controllers.EventsController
	VisitorController   *controllers.VisitorController
	CommandsController  *controllers.CommandsController
	QueueController     *controllers.QueueController
	VariablesController *controllers.VariablesController
}

func New(deps Dependencies) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", deps.HealthController.GetHealth)
	mux.HandleFunc("GET /swagger", deps.SwaggerController.RedirectToIndex)
	mux.HandleFunc("GET /swagger/openapi.yaml", deps.SwaggerController.GetOpenAPISpec)
	mux.HandleFunc("GET /swagger/", deps.SwaggerController.ServeUI)
	mux.HandleFunc("POST /v1/events", deps.EventsController.TrackEvent)
	mux.HandleFunc("POST /v1/views", deps.EventsController.TrackView)
	mux.HandleFunc("POST /v1/identify", deps.EventsController.Identify)
	mux.HandleFunc("POST /v1/visitor/renew", deps.VisitorController.RenewVisitorID)
	mux.HandleFunc("POST /v1/opt-out", deps.VisitorController.OptOut)
	mux.HandleFunc("POST /v1/opt-in", deps.VisitorController.OptIn)
	mux.HandleFunc("POST /v1/commands", deps.CommandsController.ExecuteCommand)
	mux.HandleFunc("GET /v1/queue/overview", deps.QueueController.GetOverview)
	if deps.VariablesController != nil {
		mux.HandleFunc("GET /v1/variables", deps.VariablesController.GetVariables)
		mux.HandleFunc("POST /v1/variables/fetch", deps.VariablesController.FetchVariables)
	}

	return mux
}
