//go:build !integration

package di

import (
	"compress/gzip"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"karte/internal/application/dto"
	"karte/internal/domain/entities"
	"karte/internal/infrastructure/config"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testAppKey = "abcdefghijklmnopqrstuvwxyz012345"

const remoteConfigResponse = `{"response":{"messages":[{
	"campaign":{"campaign_id":"c1","service_action_type":"remote_config"},
	"action":{"shorten_id":"s1","content":{"inlined_variables":[{"name":"color","value":"red"}]}}
}]}}`

type collector struct {
	mu     sync.Mutex
	events []string
	appKey string
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reader, err := gzip.NewReader(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fetch := false
	c.mu.Lock()
	c.appKey = r.Header.Get(dto.HeaderAppKey)
	for _, name := range gjson.GetBytes(body, "events.#.event_name").Array() {
		c.events = append(c.events, name.String())
		if name.String() == entities.EventNameFetchVariables {
			fetch = true
		}
	}
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fetch {
		_, _ = io.WriteString(w, remoteConfigResponse)
		return
	}
	_, _ = io.WriteString(w, `{"response":{"messages":[]}}`)
}

func (c *collector) received(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, event := range c.events {
		if event == name {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	t.Setenv("KARTE_APP_KEY", testAppKey)
	t.Setenv("KARTE_BASE_URL", baseURL)
	t.Setenv("KARTE_DB_DSN", filepath.Join(t.TempDir(), "karte.db"))
	t.Setenv("KARTE_CONNECTIVITY_MODE", config.ConnectivityModeStatic)
	t.Setenv("KARTE_DISPATCH_DEBOUNCE", "10ms")
	t.Setenv("KARTE_DB_READINESS_RETRY_INTERVAL", "50ms")

	cfg, cfgErr := config.LoadConfig()
	require.Nil(t, cfgErr)
	return cfg
}

func TestContainerDeliversEventsEndToEnd(t *testing.T) {
	server := &collector{}
	collection := httptest.NewServer(server)
	defer collection.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	container, err := Build(ctx, testConfig(t, collection.URL), log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.Nil(t, container.Initialize(ctx))
	require.Nil(t, container.Start(ctx))

	output, delivered, appErr := container.Track(ctx, entities.NewViewEvent("home", "", "", nil))
	require.Nil(t, appErr)
	require.True(t, output.Accepted)
	require.True(t, delivered)
	require.True(t, server.received(entities.EventNameView))
	require.Eventually(t, func() bool {
		return server.received(entities.EventNameNativeAppOpen)
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, testAppKey, server.appKey)

	fetched := make(chan bool, 1)
	require.Nil(t, container.Variables.Fetch(ctx, func(ok bool) { fetched <- ok }))
	require.True(t, <-fetched)
	require.Equal(t, "red", container.Variables.Get(ctx, "color").String(""))

	require.Eventually(t, func() bool {
		return server.received(entities.EventNameMessageReady)
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		overview, appErr := container.QueueOverviewUseCase.Execute(ctx, dto.GetQueueOverviewQuery{})
		return appErr == nil && overview.QueuedCount == 0 && overview.RequestingCount == 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, container.Close(ctx))
}

func TestContainerCloseBeforeStartResolvesPendingTracks(t *testing.T) {
	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg := testConfig(t, unavailable.URL)

	container, err := Build(ctx, cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.Nil(t, container.Initialize(ctx))

	// Without Start the push never reaches the store; Close resolves it.
	delivered := make(chan bool, 1)
	_, appErr := container.App.Track(ctx, dto.TrackEventCommand{
		Event:      entities.NewEvent("buy", map[string]any{"price": 100}),
		Completion: func(ok bool) { delivered <- ok },
	})
	require.Nil(t, appErr)
	require.NoError(t, container.Close(ctx))
	require.False(t, <-delivered)

	reopened, err := Build(ctx, cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.Nil(t, reopened.Initialize(ctx))
	overview, appErr := reopened.QueueOverviewUseCase.Execute(ctx, dto.GetQueueOverviewQuery{})
	require.Nil(t, appErr)
	require.Zero(t, overview.QueuedCount)
	require.NoError(t, reopened.Close(ctx))
}

func TestBuildRejectsUnknownConnectivityMode(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ConnectivityMode = "carrier-pigeon"

	_, err := Build(context.Background(), cfg, log.New(io.Discard, "", 0))
	require.Error(t, err)
}
