package valueobjects

import (
	"net"
	"net/url"
	"strings"

	apperrors "karte/internal/shared_kernel/errors"
)

// NormalizeEndpointURL canonicalises the collection base URL. The result has
// a lower-case scheme and host and no trailing slash, so endpoint paths can be
// appended directly.
func NormalizeEndpointURL(raw string) (string, *apperrors.AppError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apperrors.NewValidation(
			"invalid_configuration",
			"base url is required",
			map[string]any{"field": "base_url"},
		)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || !parsed.IsAbs() || strings.TrimSpace(parsed.Host) == "" {
		return "", apperrors.NewValidation(
			"invalid_configuration",
			"base url must be a valid absolute URL",
			map[string]any{"field": "base_url"},
		)
	}

	if parsed.User != nil {
		return "", apperrors.NewValidation(
			"invalid_configuration",
			"base url must not contain user info",
			map[string]any{"field": "base_url"},
		)
	}

	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if scheme != "http" && scheme != "https" {
		return "", apperrors.NewValidation(
			"invalid_configuration",
			"base url must use http or https",
			map[string]any{"field": "base_url"},
		)
	}

	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(parsed.Hostname())), ".")
	if host == "" {
		return "", apperrors.NewValidation(
			"invalid_configuration",
			"base url host is required",
			map[string]any{"field": "base_url"},
		)
	}
	if port := strings.TrimSpace(parsed.Port()); port != "" {
		host = net.JoinHostPort(host, port)
	}

	parsed.Scheme = scheme
	parsed.Host = host
	parsed.Fragment = ""
	parsed.RawQuery = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = ""

	return parsed.String(), nil
}
