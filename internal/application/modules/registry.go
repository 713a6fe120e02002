package modules

import (
	"fmt"
	"log"
	"net/url"
	"sync"

	"karte/internal/application/dto"
	"karte/internal/domain/entities"
)

// Registry holds libraries and modules. Capability lists are built once at
// registration, so every dispatch iterates a snapshot instead of probing
// each module. Every call into a module is isolated: a panicking module is
// logged and skipped.
type Registry struct {
	mu            sync.RWMutex
	modules       []Module
	actions       []ActionModule
	users         []UserModule
	notifications []NotificationModule
	deepLinks     []DeepLinkModule
	tracks        []TrackModule
	commands      []CommandModule
	libraries     []Library
	rejection     *RejectionFilter
	logger        *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		rejection: NewRejectionFilter(),
		logger:    logger,
	}
}

// Register adds module unless one with the same name is already present.
func (r *Registry) Register(module Module) bool {
	if module == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.modules {
		if existing.Name() == module.Name() {
			return false
		}
	}
	r.modules = append(r.modules, module)
	r.rebuildLocked()
	r.logf("module registered name=%s", module.Name())
	return true
}

func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.modules {
		if existing.Name() != name {
			continue
		}
		r.modules = append(r.modules[:i:i], r.modules[i+1:]...)
		r.rebuildLocked()
		r.logf("module unregistered name=%s", name)
		return true
	}
	return false
}

func (r *Registry) RegisterLibrary(library Library) bool {
	if library == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.libraries {
		if existing.Name() == library.Name() {
			return false
		}
	}
	r.libraries = append(r.libraries, library)
	r.logf("library registered name=%s version=%s", library.Name(), library.Version())
	return true
}

func (r *Registry) UnregisterLibrary(name string) (Library, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.libraries {
		if existing.Name() != name {
			continue
		}
		r.libraries = append(r.libraries[:i:i], r.libraries[i+1:]...)
		r.logf("library unregistered name=%s", name)
		return existing, true
	}
	return nil, false
}

func (r *Registry) Libraries() []Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Library(nil), r.libraries...)
}

func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Module(nil), r.modules...)
}

func (r *Registry) ActionModules() []ActionModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ActionModule(nil), r.actions...)
}

func (r *Registry) UserModules() []UserModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]UserModule(nil), r.users...)
}

func (r *Registry) NotificationModules() []NotificationModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]NotificationModule(nil), r.notifications...)
}

func (r *Registry) DeepLinkModules() []DeepLinkModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]DeepLinkModule(nil), r.deepLinks...)
}

func (r *Registry) TrackModules() []TrackModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TrackModule(nil), r.tracks...)
}

func (r *Registry) CommandModules() []CommandModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]CommandModule(nil), r.commands...)
}

// Intercept threads request through every TrackModule. A module that
// panics leaves the request as it was before that module ran.
func (r *Registry) Intercept(request dto.TrackRequest) dto.TrackRequest {
	current := request
	for _, module := range r.TrackModules() {
		input := current.Clone()
		r.guard(module.Name(), "intercept", func() {
			current = module.Intercept(input)
		})
	}
	return current
}

func (r *Registry) Prepare(event entities.Event) entities.Event {
	current := event
	for _, module := range r.TrackModules() {
		preparer, ok := module.(EventPreparer)
		if !ok {
			continue
		}
		input := current
		r.guard(module.Name(), "prepare", func() {
			current = preparer.Prepare(input)
		})
	}
	return current
}

func (r *Registry) Reject(event entities.Event) bool {
	rejected := false
	r.guard("rejection_filter", "reject", func() {
		rejected = r.rejection.Reject(event)
	})
	return rejected
}

func (r *Registry) Receive(response dto.TrackResponse, request dto.TrackRequest) {
	for _, module := range r.ActionModules() {
		r.guard(module.Name(), "receive", func() {
			module.Receive(response, request)
		})
	}
}

func (r *Registry) ResetPageView() {
	for _, module := range r.ActionModules() {
		r.guard(module.Name(), "reset", module.Reset)
	}
}

func (r *Registry) ResetAll() {
	for _, module := range r.ActionModules() {
		r.guard(module.Name(), "reset_all", module.ResetAll)
	}
}

func (r *Registry) RenewVisitorID(current string, previous string) {
	for _, module := range r.UserModules() {
		r.guard(module.Name(), "renew_visitor_id", func() {
			module.RenewVisitorID(current, previous)
		})
	}
}

func (r *Registry) Unsubscribe() {
	for _, module := range r.NotificationModules() {
		r.guard(module.Name(), "unsubscribe", module.Unsubscribe)
	}
}

func (r *Registry) HandleDeepLink(link *url.URL) {
	for _, module := range r.DeepLinkModules() {
		r.guard(module.Name(), "handle", func() {
			module.Handle(link)
		})
	}
}

func (r *Registry) ExecuteCommand(command *url.URL, isDelay bool) []any {
	results := make([]any, 0)
	for _, module := range r.CommandModules() {
		r.guard(module.Name(), "execute", func() {
			if !module.Validate(command) {
				return
			}
			if result := module.Execute(command, isDelay); result != nil {
				results = append(results, result)
			}
		})
	}
	return results
}

func (r *Registry) guard(moduleName string, operation string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logf("module call panicked module=%s operation=%s panic=%s", moduleName, operation, fmt.Sprint(recovered))
		}
	}()
	fn()
}

func (r *Registry) rebuildLocked() {
	r.actions = r.actions[:0]
	r.users = r.users[:0]
	r.notifications = r.notifications[:0]
	r.deepLinks = r.deepLinks[:0]
	r.tracks = r.tracks[:0]
	r.commands = r.commands[:0]
	r.rejection.Clear()

	for _, module := range r.modules {
		if typed, ok := module.(ActionModule); ok {
			r.actions = append(r.actions, typed)
		}
		if typed, ok := module.(UserModule); ok {
			r.users = append(r.users, typed)
		}
		if typed, ok := module.(NotificationModule); ok {
			r.notifications = append(r.notifications, typed)
		}
		if typed, ok := module.(DeepLinkModule); ok {
			r.deepLinks = append(r.deepLinks, typed)
		}
		if typed, ok := module.(CommandModule); ok {
			r.commands = append(r.commands, typed)
		}
		if typed, ok := module.(TrackModule); ok {
			r.tracks = append(r.tracks, typed)
			if provider, ok := module.(RejectionRuleProvider); ok {
				r.addRulesLocked(module.Name(), provider)
			}
		}
	}
}

func (r *Registry) addRulesLocked(moduleName string, provider RejectionRuleProvider) {
	r.guard(moduleName, "event_rejection_rules", func() {
		for _, rule := range provider.EventRejectionRules() {
			r.rejection.Add(rule)
		}
	})
}

func (r *Registry) logf(format string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
