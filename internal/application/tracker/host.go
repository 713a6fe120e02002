package tracker

import (
	"context"
	"log"

	"karte/internal/application/dto"
	"karte/internal/application/modules"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
)

// appHost is what libraries see of the App while configured.
type appHost struct {
	app *App
}

var _ modules.Host = appHost{}

func (h appHost) Track(ctx context.Context, event entities.Event, completion func(delivered bool)) {
	if _, appErr := h.app.Track(ctx, dto.TrackEventCommand{Event: event, Completion: completion}); appErr != nil {
		h.app.logf("library track failed event=%s code=%s", event.Name, appErr.Code)
	}
}

func (h appHost) RegisterModule(module modules.Module) {
	h.app.registry.Register(module)
}

func (h appHost) UnregisterModule(name string) {
	h.app.registry.Unregister(name)
}

func (h appHost) VisitorID(ctx context.Context) string {
	visitorID, appErr := h.app.currentVisitorID(ctx)
	if appErr != nil {
		return ""
	}
	return visitorID
}

func (h appHost) Repository(namespace string) portsout.KeyValueRepository {
	if h.app.repository == nil {
		return nil
	}
	return h.app.repository.Namespace(namespace)
}

func (h appHost) Logger() *log.Logger {
	return h.app.logger
}
