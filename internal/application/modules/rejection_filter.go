package modules

import (
	"sync"

	"karte/internal/domain/entities"
)

type RejectionRule interface {
	LibraryName() string
	EventName() string
	Reject(event entities.Event) bool
}

// RejectionRuleFunc adapts a predicate into a RejectionRule.
type RejectionRuleFunc struct {
	Library string
	Event   string
	Fn      func(event entities.Event) bool
}

func (r RejectionRuleFunc) LibraryName() string {
	return r.Library
}

func (r RejectionRuleFunc) EventName() string {
	return r.Event
}

func (r RejectionRuleFunc) Reject(event entities.Event) bool {
	if r.Fn == nil {
		return true
	}
	return r.Fn(event)
}

type RejectionFilter struct {
	mu    sync.RWMutex
	rules map[string]map[string][]RejectionRule
}

func NewRejectionFilter() *RejectionFilter {
	return &RejectionFilter{rules: map[string]map[string][]RejectionRule{}}
}

func (f *RejectionFilter) Add(rule RejectionRule) {
	if rule == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	byEvent, exists := f.rules[rule.LibraryName()]
	if !exists {
		byEvent = map[string][]RejectionRule{}
		f.rules[rule.LibraryName()] = byEvent
	}
	byEvent[rule.EventName()] = append(byEvent[rule.EventName()], rule)
}

func (f *RejectionFilter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = map[string]map[string][]RejectionRule{}
}

// Reject reports whether any rule registered for the event's library and
// name vetoes it. Events without a library are never rejected.
func (f *RejectionFilter) Reject(event entities.Event) bool {
	if event.LibraryName == "" {
		return false
	}
	f.mu.RLock()
	rules := f.rules[event.LibraryName][event.Name]
	f.mu.RUnlock()

	for _, rule := range rules {
		if rule.Reject(event) {
			return true
		}
	}
	return false
}
