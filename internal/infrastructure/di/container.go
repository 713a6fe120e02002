package di

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"karte/api"
	"karte/internal/adapters/inbound/http/controllers"
	httpRouter "karte/internal/adapters/inbound/http/router"
	"karte/internal/adapters/outbound/docs"
	"karte/internal/adapters/outbound/persistence/datastore"
	"karte/internal/adapters/outbound/persistence/datastore/eventrecord"
	"karte/internal/adapters/outbound/persistence/datastore/preferences"
	trackhttp "karte/internal/adapters/outbound/track/http"
	"karte/internal/application/dto"
	"karte/internal/application/modules"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/application/tracker"
	"karte/internal/application/use_cases"
	"karte/internal/domain/entities"
	"karte/internal/domain/policies"
	"karte/internal/infrastructure/config"
	"karte/internal/infrastructure/connectivity"
	"karte/internal/infrastructure/dispatcher"
	"karte/internal/infrastructure/httpserver"
	karteotel "karte/internal/infrastructure/otel"
	"karte/internal/libraries/variables"
	apperrors "karte/internal/shared_kernel/errors"
)

// Container owns every long-lived component of the agent. Build only wires
// them; Initialize, Start and Close drive the lifecycle.
type Container struct {
	Database                     *datastore.Database
	Server                       *httpserver.Server
	App                          *tracker.App
	Dispatcher                   *dispatcher.Dispatcher
	Variables                    *variables.Library
	Connectivity                 portsout.ConnectivityObserver
	InitializePersistenceUseCase portsin.InitializePersistenceUseCase
	QueueOverviewUseCase         portsin.GetQueueOverviewUseCase

	config            config.Config
	observer          *connectivity.Observer
	shutdownTelemetry func(context.Context) error
	logger            *log.Logger
}

// ConnectivityBuilder returns the observer for one connectivity mode.
// Observers that poll are started and stopped by the container.
type ConnectivityBuilder func(cfg config.Config, logger *log.Logger) portsout.ConnectivityObserver

var connectivityBuilders = map[string]ConnectivityBuilder{
	config.ConnectivityModeDial: func(cfg config.Config, logger *log.Logger) portsout.ConnectivityObserver {
		return connectivity.NewObserver(
			connectivity.DialProbe{Address: cfg.ProbeAddress()},
			cfg.ConnectivityInterval,
			cfg.ConnectivityDebounce,
			logger,
		)
	},
	config.ConnectivityModeInterface: func(cfg config.Config, logger *log.Logger) portsout.ConnectivityObserver {
		return connectivity.NewObserver(
			connectivity.InterfaceProbe{},
			cfg.ConnectivityInterval,
			cfg.ConnectivityDebounce,
			logger,
		)
	},
	config.ConnectivityModeStatic: func(_ config.Config, _ *log.Logger) portsout.ConnectivityObserver {
		return connectivity.NewStatic(true)
	},
}

var connectivityBuildersMu sync.RWMutex

func RegisterConnectivityBuilder(mode string, builder ConnectivityBuilder) {
	normalizedMode := strings.ToLower(strings.TrimSpace(mode))
	if normalizedMode == "" || builder == nil {
		return
	}

	connectivityBuildersMu.Lock()
	defer connectivityBuildersMu.Unlock()
	connectivityBuilders[normalizedMode] = builder
}

func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (*Container, error) {
	connectivityObserver, buildErr := buildConnectivity(cfg, logger)
	if buildErr != nil {
		return nil, buildErr
	}

	shutdownTelemetry, err := karteotel.Setup(ctx, karteotel.Settings{
		Enabled:        cfg.OTelEnabled,
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: config.SDKVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry setup: %w", err)
	}

	database, err := datastore.Open(datastore.Config{
		Engine:       cfg.DatabaseEngine,
		DSN:          cfg.DatabaseDSN,
		MaxOpenConns: cfg.DatabaseMaxOpenConns,
	}, logger)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	eventStore, err := eventrecord.NewStore(database, logger)
	if err != nil {
		_ = database.Close()
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("event record store: %w", err)
	}
	preferenceRepository, err := preferences.NewRepository(database, logger)
	if err != nil {
		_ = database.Close()
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("preferences repository: %w", err)
	}

	persistenceGateway := datastore.NewBootstrapGateway(
		database,
		[]datastore.Schema{eventrecord.Schema(), preferences.Schema()},
		logger,
	)
	initializePersistenceUseCase := use_cases.NewInitializePersistenceUseCase(persistenceGateway)

	breaker := policies.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerRecoverAfter, nil)

	// The rate limit and the dispatch use case need the dispatcher and the
	// app, which in turn need them; the closures resolve after wiring.
	var eventDispatcher *dispatcher.Dispatcher
	var app *tracker.App
	var rateLimit *policies.RateLimit
	if cfg.RateLimitEnabled {
		rateLimit = policies.NewRateLimit(
			cfg.RateLimitPerWindow,
			cfg.RateLimitWindow,
			policies.SchedulerFunc(func(delay time.Duration, task func()) {
				eventDispatcher.Schedule(delay, task)
			}),
			nil,
		)
	}

	registry := modules.NewRegistry(logger)
	trackGateway := trackhttp.NewGateway(trackhttp.Config{
		Timeout:    cfg.RequestTimeout,
		SDKVersion: config.SDKVersion,
	})

	enqueueUseCase := use_cases.NewEnqueueEventUseCase(eventStore, connectivityObserver, logger)
	recoverUseCase := use_cases.NewRecoverEventsUseCase(eventStore, logger)
	dispatchUseCase := use_cases.NewDispatchEventsUseCase(use_cases.DispatchEventsDependencies{
		Store:        eventStore,
		Gateway:      trackGateway,
		Pipeline:     registry,
		Breaker:      breaker,
		RateLimit:    rateLimit,
		Connectivity: connectivityObserver,
		Logger:       logger,
	}, use_cases.DispatchEventsSettings{
		TrackURL:  cfg.TrackURL(),
		AppKey:    cfg.AppKey.String(),
		ChunkSize: cfg.DispatchChunkSize,
		Backoff: policies.RetryBackoff{
			BaseInterval:        cfg.RetryBaseInterval,
			Multiplier:          cfg.RetryMultiplier,
			RandomizationFactor: cfg.RetryRandomization,
		},
		AppInfo: func() *dto.AppInfo {
			return app.AppInfo()
		},
	})

	eventDispatcher = dispatcher.New(dispatcher.Options{
		Enqueue:      enqueueUseCase,
		Dispatch:     dispatchUseCase,
		Recover:      recoverUseCase,
		Connectivity: connectivityObserver,
		Store:        eventStore,
		Debounce:     cfg.DispatchDebounce,
		Logger:       logger,
	})

	app = tracker.New(tracker.Dependencies{
		Queue:      eventDispatcher,
		Registry:   registry,
		Repository: preferenceRepository,
		Logger:     logger,
	}, tracker.Settings{
		DryRun:        cfg.DryRun,
		OptOutDefault: cfg.OptOutDefault,
		AppInfo: tracker.AppInfoSettings{
			VersionName: cfg.AppVersionName,
			VersionCode: cfg.AppVersionCode,
			PackageName: cfg.AppPackageName,
			SDKVersion:  config.SDKVersion,
			Language:    cfg.Language,
		},
	})
	variablesLibrary := variables.New()
	app.RegisterLibrary(variablesLibrary)

	healthUseCase := use_cases.NewGetHealthUseCase(connectivityObserver, breaker)
	openAPIUseCase := use_cases.NewGetOpenAPISpecUseCase(docs.NewOpenAPISpecReadModel(cfg.OpenAPISpecPath, api.OpenAPISpec))
	queueOverviewUseCase := use_cases.NewGetQueueOverviewUseCase(eventStore, breaker, rateLimit, connectivityObserver)

	router := httpRouter.New(httpRouter.Dependencies{
		HealthController:    controllers.NewHealthController(healthUseCase, logger),
		SwaggerController:   controllers.NewSwaggerController(openAPIUseCase, logger),
		EventsController:    controllers.NewEventsController(app, 0, logger),
		VisitorController:   controllers.NewVisitorController(app, logger),
		CommandsController:  controllers.NewCommandsController(app, logger),
		QueueController:     controllers.NewQueueController(queueOverviewUseCase, logger),
		VariablesController: controllers.NewVariablesController(variablesLibrary, logger),
	})
	server := httpserver.New(cfg.Address(), router, cfg.ShutdownTimeout, logger)

	observer, _ := connectivityObserver.(*connectivity.Observer)
	return &Container{
		Database:                     database,
		Server:                       server,
		App:                          app,
		Dispatcher:                   eventDispatcher,
		Variables:                    variablesLibrary,
		Connectivity:                 connectivityObserver,
		InitializePersistenceUseCase: initializePersistenceUseCase,
		QueueOverviewUseCase:         queueOverviewUseCase,
		config:                       cfg,
		observer:                     observer,
		shutdownTelemetry:            shutdownTelemetry,
		logger:                       logger,
	}, nil
}

// Initialize waits for the datastore and prepares its tables.
func (c *Container) Initialize(ctx context.Context) *apperrors.AppError {
	c.logf("persistence initialization starting database_target=%s", c.Database.Target())
	output, appErr := c.InitializePersistenceUseCase.Execute(ctx, dto.InitializePersistenceCommand{
		ReadinessTimeout:       c.config.DBReadinessTimeout,
		ReadinessRetryInterval: c.config.DBReadinessRetryInterval,
	})
	if appErr != nil {
		return appErr
	}
	for _, namespace := range output.RecreatedContracts() {
		c.logf("persistence contract recreated, stored rows discarded namespace=%s", namespace)
	}
	c.logf(
		"persistence initialization completed database_target=%s readiness_attempts=%d contracts=%d",
		c.Database.Target(),
		output.ReadinessAttempts,
		len(output.Contracts),
	)
	return nil
}

// Start begins connectivity polling and delivery, then sets the app up,
// which emits the launch events.
func (c *Container) Start(ctx context.Context) *apperrors.AppError {
	if c.observer != nil {
		c.observer.Start(ctx)
	}
	c.Dispatcher.Start(ctx)
	return c.App.Setup(ctx)
}

// Close tears the app down without flushing; queued events stay in the
// datastore for the next run.
func (c *Container) Close(ctx context.Context) error {
	c.App.Teardown()
	if c.observer != nil {
		c.observer.Stop()
	}

	var errs []error
	if c.shutdownTelemetry != nil {
		if err := c.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if err := c.Database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	return stderrors.Join(errs...)
}

// Track enqueues one event and waits for its delivery result or ctx.
func (c *Container) Track(ctx context.Context, event entities.Event) (dto.TrackEventOutput, bool, *apperrors.AppError) {
	delivered := make(chan bool, 1)
	output, appErr := c.App.Track(ctx, dto.TrackEventCommand{
		Event: event,
		Completion: func(ok bool) {
			delivered <- ok
		},
	})
	if appErr != nil {
		return output, false, appErr
	}
	select {
	case ok := <-delivered:
		return output, ok, nil
	case <-ctx.Done():
		return output, false, apperrors.NewUnavailable(
			"track_wait_canceled",
			"stopped waiting for delivery",
			map[string]any{"event_name": event.Name},
		)
	}
}

func buildConnectivity(cfg config.Config, logger *log.Logger) (portsout.ConnectivityObserver, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.ConnectivityMode))

	connectivityBuildersMu.RLock()
	builder, exists := connectivityBuilders[mode]
	connectivityBuildersMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported connectivity mode: %s", cfg.ConnectivityMode)
	}

	observer := builder(cfg, logger)
	if observer == nil {
		return nil, fmt.Errorf("connectivity builder returned nil observer for mode: %s", mode)
	}
	return observer, nil
}

func (c *Container) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
