package http

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"karte/internal/application/dto"
	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"
)

const (
	defaultHTTPTimeout   = 10 * time.Second
	maxResponseBodyBytes = 4 << 20
	userAgentPrefix      = "karte-go/"
)

type Config struct {
	Timeout    time.Duration
	SDKVersion string
	// Client overrides the default client, mainly for tests.
	Client *nethttp.Client
}

// Gateway posts gzip-compressed track requests to the collection endpoint.
type Gateway struct {
	client    *nethttp.Client
	userAgent string
}

var _ portsout.TrackGateway = (*Gateway)(nil)

func NewGateway(cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &nethttp.Client{
			Timeout: timeout,
		}
	}

	return &Gateway{
		client:    client,
		userAgent: userAgentPrefix + strings.TrimSpace(cfg.SDKVersion),
	}
}

// Send returns every HTTP status as a response. The error is set when no
// response was obtained or when a response body is present but unparsable.
func (g *Gateway) Send(ctx context.Context, request dto.TrackRequest) (dto.TrackResponse, *apperrors.AppError) {
	if g == nil || g.client == nil {
		return dto.TrackResponse{}, apperrors.NewInternal(
			"track_gateway_not_configured",
			"track gateway is not configured",
			nil,
		)
	}
	destinationURL := strings.TrimSpace(request.URL)
	if destinationURL == "" {
		return dto.TrackResponse{}, apperrors.NewValidation(
			"track_url_missing",
			"track url is required",
			map[string]any{"field": "url"},
		)
	}

	raw, err := request.Body()
	if err != nil {
		return dto.TrackResponse{}, apperrors.NewInternal(
			"track_request_encode_failed",
			"failed to encode track request",
			map[string]any{"error": err.Error()},
		)
	}
	body, err := gzipBody(raw)
	if err != nil {
		return dto.TrackResponse{}, apperrors.NewInternal(
			"track_request_compress_failed",
			"failed to compress track request",
			map[string]any{"error": err.Error()},
		)
	}

	httpRequest, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, destinationURL, bytes.NewReader(body))
	if err != nil {
		return dto.TrackResponse{}, apperrors.NewInternal(
			"track_request_build_failed",
			"failed to build track request",
			map[string]any{"error": err.Error()},
		)
	}
	for key, value := range request.Headers {
		httpRequest.Header.Set(key, value)
	}
	httpRequest.Header.Set(dto.HeaderContentType, "application/json")
	httpRequest.Header.Set(dto.HeaderContentEncoding, "gzip")
	httpRequest.Header.Set("User-Agent", g.userAgent)

	response, err := g.client.Do(httpRequest)
	if err != nil {
		return dto.TrackResponse{}, apperrors.NewUnavailable(
			"track_delivery_failed",
			"failed to send track request",
			map[string]any{"error": err.Error()},
		)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes))
	if err != nil {
		return dto.TrackResponse{StatusCode: response.StatusCode, Header: response.Header}, apperrors.NewUnavailable(
			"track_response_read_failed",
			"failed to read track response",
			map[string]any{
				"status_code": response.StatusCode,
				"error":       err.Error(),
			},
		)
	}

	parsed, err := dto.ParseTrackResponse(response.StatusCode, response.Header, responseBody)
	if err != nil {
		return parsed, apperrors.NewInternal(
			"track_response_invalid",
			"track response body is not valid JSON",
			map[string]any{
				"status_code": response.StatusCode,
				"body":        preview(responseBody),
			},
		)
	}
	return parsed, nil
}

func gzipBody(raw []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(raw); err != nil {
		_ = writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func preview(body []byte) string {
	const limit = 256
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > limit {
		return trimmed[:limit]
	}
	return trimmed
}
