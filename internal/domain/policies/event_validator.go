package policies

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"karte/internal/domain/entities"
)

var deprecatedEventNamePattern = regexp.MustCompile(`[^a-z0-9_]`)

var reservedEventFieldNames = map[string]struct{}{
	"_source": {}, "_system": {}, "any": {}, "avg": {}, "cache": {}, "count": {},
	"count_sets": {}, "date": {}, "f_t": {}, "first": {}, "keys": {}, "l_t": {},
	"last": {}, "lrus": {}, "max": {}, "min": {}, "o": {}, "prev": {}, "sets": {},
	"size": {}, "span": {}, "sum": {}, "type": {}, "v": {},
}

var systemEventNames = map[string]struct{}{
	entities.EventNameMessageReady:      {},
	entities.EventNameMessageSuppressed: {},
	entities.EventNameFetchVariables:    {},
}

// EventDeprecationMessages lists naming problems that are accepted today
// but may be rejected by the collection endpoint later.
func EventDeprecationMessages(event entities.Event) []string {
	messages := make([]string, 0)
	if !isASCII(event.Name) {
		messages = append(messages, fmt.Sprintf("multi-byte character in event name is deprecated event=%s", event.Name))
	}
	if isDeprecatedEventName(event.Name) {
		messages = append(messages, fmt.Sprintf("[^a-z0-9_] or leading _ in event name is deprecated event=%s", event.Name))
	}
	if fields := deprecatedFieldNames(event.Values); len(fields) > 0 {
		messages = append(messages, fmt.Sprintf(
			"dots, leading $ or reserved names in event field names are deprecated event=%s fields=%s",
			event.Name,
			strings.Join(fields, ","),
		))
	}
	return messages
}

// EventInvalidMessages lists value problems that make the event useless
// to the collection endpoint. They are reported, never enforced.
func EventInvalidMessages(event entities.Event) []string {
	if len(event.Values) == 0 {
		return nil
	}

	switch event.Name {
	case entities.EventNameView:
		if stringValue(event.Values, "view_name") == "" {
			return []string{fmt.Sprintf("view_name is empty event=%s", event.Name)}
		}
	case entities.EventNameIdentify:
		if _, exists := event.Values["user_id"]; exists && stringValue(event.Values, "user_id") == "" {
			return []string{fmt.Sprintf("user_id is empty event=%s", event.Name)}
		}
	}
	return nil
}

func isDeprecatedEventName(name string) bool {
	if name == "" {
		return false
	}
	if _, exists := systemEventNames[name]; exists {
		return false
	}
	return deprecatedEventNamePattern.MatchString(name) || strings.HasPrefix(name, "_")
}

func deprecatedFieldNames(values map[string]any) []string {
	fields := make([]string, 0)
	for key := range values {
		if _, reserved := reservedEventFieldNames[key]; reserved ||
			strings.HasPrefix(key, "$") ||
			strings.Contains(key, ".") {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}

func stringValue(values map[string]any, key string) string {
	raw, exists := values[key]
	if !exists || raw == nil {
		return ""
	}
	if typed, ok := raw.(string); ok {
		return typed
	}
	return fmt.Sprint(raw)
}

func isASCII(value string) bool {
	for _, r := range value {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
