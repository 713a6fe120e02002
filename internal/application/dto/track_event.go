package dto

import "karte/internal/domain/entities"

type TrackEventCommand struct {
	Event      entities.Event
	VisitorID  string
	Completion func(delivered bool)
}

type TrackEventOutput struct {
	Accepted   bool     `json:"accepted"`
	EventName  string   `json:"event_name"`
	VisitorID  string   `json:"visitor_id,omitempty"`
	Rejected   string   `json:"rejected,omitempty"`
	Deprecated []string `json:"deprecated,omitempty"`
}

const (
	TrackRejectedOptOut = "opt_out"
	TrackRejectedFilter = "rejection_filter"
	TrackRejectedDryRun = "dry_run"
)

type RenewVisitorIDOutput struct {
	VisitorID         string `json:"visitor_id"`
	PreviousVisitorID string `json:"previous_visitor_id"`
}

type OptOutOutput struct {
	OptOut bool `json:"opt_out"`
}

type ExecuteCommandCommand struct {
	URL     string
	IsDelay bool
}

type ExecuteCommandOutput struct {
	Results []any `json:"results"`
}
