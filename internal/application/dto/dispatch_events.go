package dto

import "time"

type DispatchEventsCommand struct {
	// OnBudgetRestored runs once the rate limit hands a request's events
	// back to the budget.
	OnBudgetRestored func()
}

type DispatchRecordOutcome struct {
	RecordID  int64
	Delivered bool
}

type DispatchEventsOutput struct {
	Skipped           string
	Claimed           int
	Held              int
	Requests          int
	Sent              int
	Retried           int
	Dropped           int
	SettleFailures    int
	HTTP2xxCount      int
	HTTP4xxCount      int
	HTTP5xxCount      int
	NetworkErrorCount int
	Outcomes          []DispatchRecordOutcome
	RetryAfter        time.Duration
	LatencyMS         int64
}

const (
	DispatchSkippedOffline     = "offline"
	DispatchSkippedRateLimited = "rate_limited"
)
