package modules

import (
	"context"
	"log"
	"net/url"

	"karte/internal/application/dto"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
)

// Module is a named plug-in. Its capabilities are discovered from the
// optional interfaces below when it is registered.
type Module interface {
	Name() string
}

type ActionModule interface {
	Module
	Receive(response dto.TrackResponse, request dto.TrackRequest)
	Reset()
	ResetAll()
}

type UserModule interface {
	Module
	RenewVisitorID(current string, previous string)
}

type NotificationModule interface {
	Module
	Unsubscribe()
}

type DeepLinkModule interface {
	Module
	Handle(link *url.URL)
}

// TrackModule may rewrite every outgoing request. Modules run in
// registration order, each seeing the previous module's output.
type TrackModule interface {
	Module
	Intercept(request dto.TrackRequest) dto.TrackRequest
}

// EventPreparer is an optional TrackModule capability applied to a single
// event before it is persisted.
type EventPreparer interface {
	Prepare(event entities.Event) entities.Event
}

// RejectionRuleProvider is an optional TrackModule capability contributing
// rules that veto events before they are persisted.
type RejectionRuleProvider interface {
	EventRejectionRules() []RejectionRule
}

type CommandModule interface {
	Module
	Validate(command *url.URL) bool
	Execute(command *url.URL, isDelay bool) any
}

// Host is the surface a library sees while it is configured.
type Host interface {
	Track(ctx context.Context, event entities.Event, completion func(delivered bool))
	RegisterModule(module Module)
	UnregisterModule(name string)
	VisitorID(ctx context.Context) string
	Repository(namespace string) portsout.KeyValueRepository
	Logger() *log.Logger
}

type Library interface {
	Name() string
	Version() string
	IsPublic() bool
	Configure(host Host)
	Unconfigure(host Host)
}
