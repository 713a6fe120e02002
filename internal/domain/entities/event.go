package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventNameView                  = "view"
	EventNameIdentify              = "identify"
	EventNameAttribute             = "attribute"
	EventNameNativeAppInstall      = "native_app_install"
	EventNameNativeAppUpdate       = "native_app_update"
	EventNameNativeAppOpen         = "native_app_open"
	EventNameNativeAppForeground   = "native_app_foreground"
	EventNameNativeAppBackground   = "native_app_background"
	EventNameNativeAppRenewVisitor = "native_app_renew_visitor_id"
	EventNameMessageReady          = "_message_ready"
	EventNameMessageOpen           = "message_open"
	EventNameMessageClose          = "message_close"
	EventNameMessageClick          = "message_click"
	EventNameMessageSuppressed     = "_message_suppressed"
	EventNameFetchVariables        = "_fetch_variables"
	eventValueLocalEventDate       = "_local_event_date"
	eventValueRetry                = "_retry"
	eventFieldIsRetryable          = "_is_retryable"
	eventFieldLibraryName          = "library_name"
	eventFieldEventName            = "event_name"
	eventFieldValues               = "values"
	messageEventCampaignIDField    = "campaign_id"
	messageEventShortenIDField     = "shorten_id"
	messageEventMessageField       = "message"
	renewVisitorEventNewVisitorID  = "new_visitor_id"
	renewVisitorEventOldVisitorID  = "old_visitor_id"
	viewEventViewNameField         = "view_name"
	viewEventViewIDField           = "view_id"
	viewEventTitleField            = "title"
	identifyEventUserIDField       = "user_id"
)

// Event is a single tracked occurrence. Values holds JSON-compatible data;
// time values are normalised to unix seconds at construction.
type Event struct {
	Name           string
	Values         map[string]any
	IsRetryable    bool
	IsRetry        bool
	LibraryName    string
	LocalEventDate int64
}

type EventOption func(*Event)

func WithRetryable(retryable bool) EventOption {
	return func(e *Event) {
		e.IsRetryable = retryable
	}
}

func WithLibraryName(libraryName string) EventOption {
	return func(e *Event) {
		e.LibraryName = libraryName
	}
}

func WithLocalEventDate(at time.Time) EventOption {
	return func(e *Event) {
		e.LocalEventDate = at.Unix()
	}
}

func NewEvent(name string, values map[string]any, opts ...EventOption) Event {
	event := Event{
		Name:           name,
		Values:         NormalizeValues(values),
		IsRetryable:    true,
		LocalEventDate: time.Now().Unix(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&event)
		}
	}
	return event
}

func NewViewEvent(viewName string, viewID string, title string, values map[string]any) Event {
	merged := copyValues(values)
	merged[viewEventViewNameField] = viewName
	if _, exists := merged[viewEventTitleField]; !exists {
		if title == "" {
			title = viewName
		}
		merged[viewEventTitleField] = title
	}
	if _, exists := merged[viewEventViewIDField]; !exists && viewID != "" {
		merged[viewEventViewIDField] = viewID
	}
	return NewEvent(EventNameView, merged)
}

func NewIdentifyEvent(userID string, values map[string]any) Event {
	merged := copyValues(values)
	merged[identifyEventUserIDField] = userID
	return NewEvent(EventNameIdentify, merged)
}

func NewAttributeEvent(values map[string]any) Event {
	return NewEvent(EventNameAttribute, values)
}

func NewRenewVisitorIDEvent(newVisitorID string, oldVisitorID string) Event {
	values := map[string]any{}
	if newVisitorID != "" {
		values[renewVisitorEventNewVisitorID] = newVisitorID
	}
	if oldVisitorID != "" {
		values[renewVisitorEventOldVisitorID] = oldVisitorID
	}
	return NewEvent(EventNameNativeAppRenewVisitor, values)
}

func NewMessageEvent(
	name string,
	campaignID string,
	shortenID string,
	values map[string]any,
	libraryName string,
) Event {
	merged := copyValues(values)
	message, _ := merged[messageEventMessageField].(map[string]any)
	message = copyValues(message)
	message[messageEventCampaignIDField] = campaignID
	message[messageEventShortenIDField] = shortenID
	merged[messageEventMessageField] = message
	return NewEvent(name, merged, WithLibraryName(libraryName))
}

func SameKind(a Event, b Event) bool {
	return a.Name == b.Name
}

// WireValues returns the values object sent on the wire.
func (e Event) WireValues() map[string]any {
	values := copyValues(e.Values)
	values[eventValueLocalEventDate] = e.LocalEventDate
	if e.IsRetry {
		values[eventValueRetry] = true
	}
	return values
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		eventFieldEventName: e.Name,
		eventFieldValues:    e.WireValues(),
	})
}

// Serialize encodes the event in its persisted form, which additionally
// carries retryability and the originating library.
func (e Event) Serialize() (string, error) {
	payload := map[string]any{
		eventFieldEventName:   e.Name,
		eventFieldValues:      e.WireValues(),
		eventFieldIsRetryable: e.IsRetryable,
	}
	if e.LibraryName != "" {
		payload[eventFieldLibraryName] = e.LibraryName
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize event %s: %w", e.Name, err)
	}
	return string(raw), nil
}

type persistedEvent struct {
	EventName   *string         `json:"event_name"`
	Values      json.RawMessage `json:"values"`
	IsRetryable *bool           `json:"_is_retryable"`
	LibraryName *string         `json:"library_name"`
}

func ParseEvent(raw string) (Event, error) {
	decoded := persistedEvent{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if decoded.EventName == nil {
		return Event{}, fmt.Errorf("decode event: event_name is missing")
	}

	values := map[string]any{}
	if len(decoded.Values) > 0 && !bytes.Equal(decoded.Values, []byte("null")) {
		decoder := json.NewDecoder(bytes.NewReader(decoded.Values))
		decoder.UseNumber()
		if err := decoder.Decode(&values); err != nil {
			return Event{}, fmt.Errorf("decode event values: %w", err)
		}
	}

	event := Event{
		Name:        *decoded.EventName,
		Values:      values,
		IsRetryable: true,
	}
	if decoded.IsRetryable != nil {
		event.IsRetryable = *decoded.IsRetryable
	}
	if decoded.LibraryName != nil {
		event.LibraryName = *decoded.LibraryName
	}
	if rawDate, exists := values[eventValueLocalEventDate]; exists {
		if number, ok := rawDate.(json.Number); ok {
			if parsed, err := number.Int64(); err == nil {
				event.LocalEventDate = parsed
			}
		}
		delete(values, eventValueLocalEventDate)
	}
	delete(values, eventValueRetry)
	return event, nil
}

// NormalizeValues deep-copies values, converting time values into unix
// seconds so that the stored and transmitted forms agree.
func NormalizeValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case time.Time:
		return typed.Unix()
	case *time.Time:
		if typed == nil {
			return nil
		}
		return typed.Unix()
	case map[string]any:
		return NormalizeValues(typed)
	case map[string]string:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = item
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out
	default:
		return value
	}
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values)+2)
	for key, value := range values {
		out[key] = value
	}
	return out
}
