package variables

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Variable is one remote-config value together with the campaign that set
// it. An undefined Variable returns the caller's default from every getter.
type Variable struct {
	Name       string
	CampaignID string
	ShortenID  string
	value      *string
}

type storedVariable struct {
	CampaignID string `json:"campaign_id"`
	ShortenID  string `json:"shorten_id"`
	Value      string `json:"value"`
}

func newVariable(name string, campaignID string, shortenID string, value string) Variable {
	return Variable{
		Name:       name,
		CampaignID: campaignID,
		ShortenID:  shortenID,
		value:      &value,
	}
}

func emptyVariable(name string) Variable {
	return Variable{Name: name}
}

func (v Variable) IsDefined() bool {
	return v.value != nil
}

func (v Variable) String(fallback string) string {
	if v.value == nil {
		return fallback
	}
	return *v.value
}

// Int parses the value as a decimal number and truncates it.
func (v Variable) Int(fallback int64) int64 {
	parsed, ok := v.number()
	if !ok {
		return fallback
	}
	return int64(parsed)
}

func (v Variable) Float(fallback float64) float64 {
	parsed, ok := v.number()
	if !ok {
		return fallback
	}
	return parsed
}

// Bool is true only for a case-insensitive "true".
func (v Variable) Bool(fallback bool) bool {
	if v.value == nil {
		return fallback
	}
	return strings.EqualFold(strings.TrimSpace(*v.value), "true")
}

// JSONObject decodes the value as a JSON object.
func (v Variable) JSONObject(fallback map[string]any) map[string]any {
	raw, ok := v.json()
	if !ok || !raw.IsObject() {
		return fallback
	}
	decoded, ok := raw.Value().(map[string]any)
	if !ok {
		return fallback
	}
	return decoded
}

// JSONArray decodes the value as a JSON array.
func (v Variable) JSONArray(fallback []any) []any {
	raw, ok := v.json()
	if !ok || !raw.IsArray() {
		return fallback
	}
	decoded, ok := raw.Value().([]any)
	if !ok {
		return fallback
	}
	return decoded
}

func (v Variable) number() (float64, bool) {
	if v.value == nil {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(*v.value), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func (v Variable) json() (gjson.Result, bool) {
	if v.value == nil || !gjson.Valid(*v.value) {
		return gjson.Result{}, false
	}
	return gjson.Parse(*v.value), true
}

func (v Variable) serialize() (string, error) {
	raw, err := json.Marshal(storedVariable{
		CampaignID: v.CampaignID,
		ShortenID:  v.ShortenID,
		Value:      v.String(""),
	})
	if err != nil {
		return "", fmt.Errorf("encode variable %s: %w", v.Name, err)
	}
	return string(raw), nil
}

func deserializeVariable(name string, raw string) (Variable, error) {
	if !gjson.Valid(raw) {
		return Variable{}, fmt.Errorf("decode variable %s: invalid json", name)
	}
	fields := gjson.GetMany(raw, "campaign_id", "shorten_id", "value")
	for i, key := range []string{"campaign_id", "shorten_id", "value"} {
		if fields[i].Type != gjson.String {
			return Variable{}, fmt.Errorf("decode variable %s: %s must be a string", name, key)
		}
	}
	return newVariable(name, fields[0].Str, fields[1].Str, fields[2].Str), nil
}
