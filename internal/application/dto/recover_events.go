package dto

type RecoverEventsCommand struct{}

type RecoverEventsOutput struct {
	Recovered int
}
