package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"karte/internal/domain/entities"

	"github.com/tidwall/gjson"
)

const (
	HeaderAppKey          = "X-KARTE-App-Key"
	HeaderContentType     = "Content-Type"
	HeaderContentEncoding = "Content-Encoding"
	trackMessagesPath     = "response.messages"
)

type SystemInfo struct {
	OS        string `json:"os"`
	OSVersion string `json:"os_version,omitempty"`
	Arch      string `json:"arch,omitempty"`
	Device    string `json:"device,omitempty"`
	Language  string `json:"language,omitempty"`
}

type AppInfo struct {
	VersionName     string            `json:"version_name,omitempty"`
	VersionCode     string            `json:"version_code"`
	KarteSDKVersion string            `json:"karte_sdk_version"`
	PackageName     string            `json:"package_name,omitempty"`
	SystemInfo      SystemInfo        `json:"system_info"`
	ModuleInfo      map[string]string `json:"module_info,omitempty"`
}

type TrackKeys struct {
	VisitorID    string `json:"visitor_id"`
	OriginalPvID string `json:"original_pv_id"`
	PvID         string `json:"pv_id"`
}

// TrackRequest is one collection request: a single identity key and up to
// one chunk of events. TrackModules receive and return copies of it.
type TrackRequest struct {
	URL          string
	Headers      map[string]string
	VisitorID    string
	OriginalPvID string
	PvID         string
	AppInfo      *AppInfo
	Events       []entities.Event
}

type trackRequestBody struct {
	Keys    TrackKeys        `json:"keys"`
	AppInfo *AppInfo         `json:"app_info"`
	Events  []entities.Event `json:"events"`
}

func (r TrackRequest) Clone() TrackRequest {
	cloned := r
	cloned.Headers = make(map[string]string, len(r.Headers))
	for key, value := range r.Headers {
		cloned.Headers[key] = value
	}
	cloned.Events = make([]entities.Event, len(r.Events))
	for i, event := range r.Events {
		event.Values = entities.NormalizeValues(event.Values)
		cloned.Events[i] = event
	}
	if r.AppInfo != nil {
		appInfo := *r.AppInfo
		if r.AppInfo.ModuleInfo != nil {
			appInfo.ModuleInfo = make(map[string]string, len(r.AppInfo.ModuleInfo))
			for key, value := range r.AppInfo.ModuleInfo {
				appInfo.ModuleInfo[key] = value
			}
		}
		cloned.AppInfo = &appInfo
	}
	return cloned
}

func (r TrackRequest) Contains(eventName string) bool {
	for _, event := range r.Events {
		if event.Name == eventName {
			return true
		}
	}
	return false
}

func (r TrackRequest) Keys() TrackKeys {
	return TrackKeys{
		VisitorID:    r.VisitorID,
		OriginalPvID: r.OriginalPvID,
		PvID:         r.PvID,
	}
}

func (r TrackRequest) Body() ([]byte, error) {
	events := r.Events
	if events == nil {
		events = []entities.Event{}
	}
	raw, err := json.Marshal(trackRequestBody{
		Keys:    r.Keys(),
		AppInfo: r.AppInfo,
		Events:  events,
	})
	if err != nil {
		return nil, fmt.Errorf("encode track request: %w", err)
	}
	return raw, nil
}

type TrackResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Messages   []json.RawMessage
}

// ParseTrackResponse extracts response.messages from a collection response
// body. An empty body carries no messages; a body that is present but not
// JSON is an error.
func ParseTrackResponse(statusCode int, header http.Header, body []byte) (TrackResponse, error) {
	response := TrackResponse{
		StatusCode: statusCode,
		Header:     header,
		Body:       body,
		Messages:   []json.RawMessage{},
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return response, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return response, fmt.Errorf("track response body is not valid JSON")
	}

	messages := gjson.GetBytes(trimmed, trackMessagesPath)
	if !messages.IsArray() {
		return response, nil
	}
	for _, message := range messages.Array() {
		response.Messages = append(response.Messages, json.RawMessage(message.Raw))
	}
	return response, nil
}

func (r TrackResponse) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// IsMaintenance reports a 503 from the collection endpoint. It only
// changes logging; the response is retried like any other failure.
func (r TrackResponse) IsMaintenance() bool {
	return r.StatusCode == http.StatusServiceUnavailable
}
