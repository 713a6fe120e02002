package tracker

import (
	"context"
	"strconv"

	"karte/internal/application/dto"
	"karte/internal/domain/entities"
	apperrors "karte/internal/shared_kernel/errors"
)

// VisitorID returns the persisted visitor id, creating one on first use.
func (a *App) VisitorID(ctx context.Context) (string, *apperrors.AppError) {
	return a.currentVisitorID(ctx)
}

func (a *App) currentVisitorID(ctx context.Context) (string, *apperrors.AppError) {
	a.mu.Lock()
	cached := a.visitorID
	a.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	if a.repository == nil {
		return "", apperrors.NewInternal(
			"preferences_repository_missing",
			"preferences repository is required",
			nil,
		)
	}
	stored, exists, appErr := a.repository.Get(ctx, keyVisitorID)
	if appErr != nil {
		return "", appErr
	}
	if !exists || stored == "" {
		stored = a.newID()
		if appErr := a.repository.Put(ctx, keyVisitorID, stored); appErr != nil {
			return "", appErr
		}
		a.logf("visitor id created visitor_id=%s", stored)
	}

	a.mu.Lock()
	if a.visitorID == "" {
		a.visitorID = stored
	}
	resolved := a.visitorID
	a.mu.Unlock()
	return resolved, nil
}

// RenewVisitorID switches to a fresh visitor id. The change is reported
// under both identities so the two can be linked server side.
func (a *App) RenewVisitorID(ctx context.Context) (dto.RenewVisitorIDOutput, *apperrors.AppError) {
	previous, appErr := a.currentVisitorID(ctx)
	if appErr != nil {
		return dto.RenewVisitorIDOutput{}, appErr
	}
	current := a.newID()

	if _, appErr := a.Track(ctx, dto.TrackEventCommand{
		Event:     entities.NewRenewVisitorIDEvent(current, ""),
		VisitorID: previous,
	}); appErr != nil {
		a.logf("renew visitor event failed visitor_id=%s code=%s", previous, appErr.Code)
	}

	if appErr := a.repository.Put(ctx, keyVisitorID, current); appErr != nil {
		return dto.RenewVisitorIDOutput{}, appErr
	}
	a.mu.Lock()
	a.visitorID = current
	a.mu.Unlock()

	if _, appErr := a.Track(ctx, dto.TrackEventCommand{
		Event:     entities.NewRenewVisitorIDEvent("", previous),
		VisitorID: current,
	}); appErr != nil {
		a.logf("renew visitor event failed visitor_id=%s code=%s", current, appErr.Code)
	}

	a.registry.RenewVisitorID(current, previous)
	a.logf("visitor id renewed visitor_id=%s previous_visitor_id=%s", current, previous)
	return dto.RenewVisitorIDOutput{VisitorID: current, PreviousVisitorID: previous}, nil
}

// PageViewIDs returns the process-wide original page-view id and the
// current one.
func (a *App) PageViewIDs() (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.originalPvID, a.pvID
}

// ScreenChanged starts a new page view.
func (a *App) ScreenChanged() {
	a.renewPvID()
}

// ScreenPaused falls back to the original page view until the next screen.
func (a *App) ScreenPaused() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pvID = a.originalPvID
}

func (a *App) renewPvID() {
	a.registry.ResetPageView()
	a.mu.Lock()
	a.pvID = a.newID()
	a.mu.Unlock()
}

// IsOptOut reports the effective opt-out state: a temporary opt-out wins,
// then the persisted flag, then the configured default.
func (a *App) IsOptOut(ctx context.Context) bool {
	a.mu.Lock()
	temporarily := a.optOutTemporarily
	a.mu.Unlock()
	if temporarily {
		return true
	}
	if a.repository == nil {
		return a.settings.OptOutDefault
	}
	stored, exists, appErr := a.repository.Get(ctx, keyOptOut)
	if appErr != nil || !exists {
		return a.settings.OptOutDefault
	}
	optOut, err := strconv.ParseBool(stored)
	if err != nil {
		return a.settings.OptOutDefault
	}
	return optOut
}

func (a *App) OptOut(ctx context.Context) (dto.OptOutOutput, *apperrors.AppError) {
	if a.repository == nil {
		return dto.OptOutOutput{}, apperrors.NewInternal(
			"preferences_repository_missing",
			"preferences repository is required",
			nil,
		)
	}
	a.registry.ResetAll()
	a.registry.Unsubscribe()
	if appErr := a.repository.Put(ctx, keyOptOut, strconv.FormatBool(true)); appErr != nil {
		return dto.OptOutOutput{}, appErr
	}
	a.logf("opt out enabled")
	return dto.OptOutOutput{OptOut: true}, nil
}

func (a *App) OptIn(ctx context.Context) (dto.OptOutOutput, *apperrors.AppError) {
	if a.repository == nil {
		return dto.OptOutOutput{}, apperrors.NewInternal(
			"preferences_repository_missing",
			"preferences repository is required",
			nil,
		)
	}
	a.mu.Lock()
	a.optOutTemporarily = false
	a.mu.Unlock()
	if appErr := a.repository.Put(ctx, keyOptOut, strconv.FormatBool(false)); appErr != nil {
		return dto.OptOutOutput{}, appErr
	}
	a.logf("opt out disabled")
	return dto.OptOutOutput{OptOut: false}, nil
}

// OptOutTemporarily suppresses tracking for the rest of the process
// without persisting anything.
func (a *App) OptOutTemporarily() {
	a.registry.ResetAll()
	a.mu.Lock()
	a.optOutTemporarily = true
	a.mu.Unlock()
}
