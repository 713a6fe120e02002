package tracker

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"karte/internal/application/dto"
	"karte/internal/application/modules"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
	"karte/internal/domain/policies"
	apperrors "karte/internal/shared_kernel/errors"

	"github.com/google/uuid"
)

const (
	keyVisitorID      = "visitor_id"
	keyOptOut         = "opt_out"
	keyAppVersionName = "app_version_name"
	keyAppVersionCode = "app_version_code"
)

// EventQueue accepts records for delivery. Completion, when set, reports
// the final delivery result exactly once.
type EventQueue interface {
	Push(record entities.EventRecord, completion func(delivered bool))
	Stop()
}

type Settings struct {
	DryRun        bool
	OptOutDefault bool
	AppInfo       AppInfoSettings
}

type Dependencies struct {
	Queue      EventQueue
	Registry   *modules.Registry
	Repository portsout.KeyValueRepository
	Logger     *log.Logger
	// NewID generates visitor and page-view ids. Defaults to random UUIDs.
	NewID func() string
	Now   func() time.Time
}

// App is the explicit SDK context: identity, opt-out state, lifecycle
// events and the registered libraries all hang off it.
type App struct {
	settings   Settings
	queue      EventQueue
	registry   *modules.Registry
	repository portsout.KeyValueRepository
	logger     *log.Logger
	newID      func() string
	now        func() time.Time

	mu                sync.Mutex
	visitorID         string
	originalPvID      string
	pvID              string
	optOutTemporarily bool
	foregroundCount   int
	launched          bool
	configured        bool
}

var _ portsin.TrackerService = (*App)(nil)

func New(deps Dependencies, settings Settings) *App {
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	registry := deps.Registry
	if registry == nil {
		registry = modules.NewRegistry(deps.Logger)
	}

	originalPvID := newID()
	return &App{
		settings:     settings,
		queue:        deps.Queue,
		registry:     registry,
		repository:   deps.Repository,
		logger:       deps.Logger,
		newID:        newID,
		now:          now,
		originalPvID: originalPvID,
		pvID:         originalPvID,
	}
}

func (a *App) Registry() *modules.Registry {
	return a.registry
}

// Track runs the event through opt-out, module preparation and rejection
// rules, then hands it to the queue under the current identity.
func (a *App) Track(ctx context.Context, command dto.TrackEventCommand) (dto.TrackEventOutput, *apperrors.AppError) {
	event := command.Event
	output := dto.TrackEventOutput{EventName: event.Name}

	if strings.TrimSpace(event.Name) == "" {
		complete(command.Completion, false)
		return output, apperrors.NewValidation(
			"event_name_required",
			"event name is required",
			map[string]any{"field": "event_name"},
		)
	}
	if a.queue == nil {
		complete(command.Completion, false)
		return output, apperrors.NewInternal(
			"event_queue_missing",
			"event queue is required",
			nil,
		)
	}
	if a.settings.DryRun {
		output.Rejected = dto.TrackRejectedDryRun
		complete(command.Completion, false)
		return output, nil
	}
	if a.IsOptOut(ctx) {
		output.Rejected = dto.TrackRejectedOptOut
		complete(command.Completion, false)
		return output, nil
	}

	if event.Name == entities.EventNameView {
		a.renewPvID()
	}

	event = a.registry.Prepare(event)
	if a.registry.Reject(event) {
		a.logf("event rejected by filter event=%s library=%s", event.Name, event.LibraryName)
		output.Rejected = dto.TrackRejectedFilter
		complete(command.Completion, false)
		return output, nil
	}

	visitorID := command.VisitorID
	if visitorID == "" {
		resolved, appErr := a.currentVisitorID(ctx)
		if appErr != nil {
			complete(command.Completion, false)
			return output, appErr
		}
		visitorID = resolved
	}
	originalPvID, pvID := a.PageViewIDs()

	record, appErr := entities.NewEventRecord(visitorID, originalPvID, pvID, event)
	if appErr != nil {
		complete(command.Completion, false)
		return output, appErr
	}
	a.queue.Push(record, command.Completion)

	output.Accepted = true
	output.VisitorID = visitorID
	output.Deprecated = policies.EventDeprecationMessages(event)
	return output, nil
}

func (a *App) TrackNamed(ctx context.Context, name string, values map[string]any, completion func(bool)) (dto.TrackEventOutput, *apperrors.AppError) {
	return a.Track(ctx, dto.TrackEventCommand{
		Event:      entities.NewEvent(name, values),
		Completion: completion,
	})
}

func (a *App) View(ctx context.Context, viewName string, title string, values map[string]any, completion func(bool)) (dto.TrackEventOutput, *apperrors.AppError) {
	return a.Track(ctx, dto.TrackEventCommand{
		Event:      entities.NewViewEvent(viewName, "", title, values),
		Completion: completion,
	})
}

func (a *App) Identify(ctx context.Context, userID string, values map[string]any, completion func(bool)) (dto.TrackEventOutput, *apperrors.AppError) {
	return a.Track(ctx, dto.TrackEventCommand{
		Event:      entities.NewIdentifyEvent(userID, values),
		Completion: completion,
	})
}

func (a *App) Attribute(ctx context.Context, values map[string]any, completion func(bool)) (dto.TrackEventOutput, *apperrors.AppError) {
	return a.Track(ctx, dto.TrackEventCommand{
		Event:      entities.NewAttributeEvent(values),
		Completion: completion,
	})
}

// ExecuteCommand runs a krt- or app-settings URL through the built-in
// handlers and every CommandModule that accepts it.
func (a *App) ExecuteCommand(_ context.Context, command dto.ExecuteCommandCommand) (dto.ExecuteCommandOutput, *apperrors.AppError) {
	parsed, err := url.Parse(strings.TrimSpace(command.URL))
	if err != nil || parsed.Scheme == "" {
		return dto.ExecuteCommandOutput{}, apperrors.NewValidation(
			"command_url_invalid",
			"command url must be an absolute URL",
			map[string]any{"field": "url"},
		)
	}

	results := modules.ExecuteBuiltinCommands(parsed, a.settings.AppInfo.PackageName)
	results = append(results, a.registry.ExecuteCommand(parsed, command.IsDelay)...)
	return dto.ExecuteCommandOutput{Results: results}, nil
}

func (a *App) HandleDeepLink(rawLink string) *apperrors.AppError {
	parsed, err := url.Parse(strings.TrimSpace(rawLink))
	if err != nil {
		return apperrors.NewValidation(
			"deep_link_invalid",
			"deep link must be a valid URL",
			map[string]any{"field": "url"},
		)
	}
	a.registry.HandleDeepLink(parsed)
	return nil
}

func (a *App) RegisterLibrary(library modules.Library) bool {
	if !a.registry.RegisterLibrary(library) {
		return false
	}
	a.mu.Lock()
	configured := a.configured
	a.mu.Unlock()
	if configured {
		a.configureLibrary(library)
	}
	return true
}

func (a *App) UnregisterLibrary(name string) bool {
	library, removed := a.registry.UnregisterLibrary(name)
	if !removed {
		return false
	}
	a.mu.Lock()
	configured := a.configured
	a.mu.Unlock()
	if configured {
		a.unconfigureLibrary(library)
	}
	return true
}

// Setup configures registered libraries and emits the launch events. A
// dry-run app stays inert.
func (a *App) Setup(ctx context.Context) *apperrors.AppError {
	if a.settings.DryRun {
		a.logf("app setup skipped dry_run=true")
		return nil
	}
	a.mu.Lock()
	if a.configured {
		a.mu.Unlock()
		return nil
	}
	a.configured = true
	a.mu.Unlock()

	for _, library := range a.registry.Libraries() {
		a.configureLibrary(library)
	}
	a.logf("app setup completed libraries=%d", len(a.registry.Libraries()))
	return a.AppLaunched(ctx)
}

// Teardown unconfigures libraries and stops the queue without flushing.
func (a *App) Teardown() {
	a.mu.Lock()
	configured := a.configured
	a.configured = false
	a.mu.Unlock()

	if configured {
		for _, library := range a.registry.Libraries() {
			a.unconfigureLibrary(library)
		}
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	a.logf("app teardown completed")
}

func (a *App) configureLibrary(library modules.Library) {
	a.guardLibrary(library.Name(), "configure", func() {
		library.Configure(appHost{app: a})
	})
}

func (a *App) unconfigureLibrary(library modules.Library) {
	a.guardLibrary(library.Name(), "unconfigure", func() {
		library.Unconfigure(appHost{app: a})
	})
}

func (a *App) guardLibrary(name string, operation string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			a.logf("library call panicked library=%s operation=%s panic=%v", name, operation, recovered)
		}
	}()
	fn()
}

func (a *App) logf(format string, args ...any) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.Printf(format, args...)
}

func complete(completion func(bool), delivered bool) {
	if completion == nil {
		return
	}
	go completion(delivered)
}
