package tracker

import (
	"context"
	"runtime"

	"karte/internal/application/dto"
	"karte/internal/domain/entities"
	apperrors "karte/internal/shared_kernel/errors"

	"golang.org/x/text/language"
)

const coreModuleName = "core"

type AppInfoSettings struct {
	VersionName string
	VersionCode string
	PackageName string
	SDKVersion  string
	Language    string
}

// AppLaunched emits install or update detection against the persisted
// version, then native_app_open. It runs once per process.
func (a *App) AppLaunched(ctx context.Context) *apperrors.AppError {
	a.mu.Lock()
	if a.launched {
		a.mu.Unlock()
		return nil
	}
	a.launched = true
	a.mu.Unlock()

	if appErr := a.trackVersionChange(ctx); appErr != nil {
		return appErr
	}
	_, appErr := a.Track(ctx, dto.TrackEventCommand{
		Event: entities.NewEvent(entities.EventNameNativeAppOpen, nil),
	})
	return appErr
}

func (a *App) trackVersionChange(ctx context.Context) *apperrors.AppError {
	versionCode := a.settings.AppInfo.VersionCode
	if versionCode == "" || a.repository == nil {
		return nil
	}

	previousCode, exists, appErr := a.repository.Get(ctx, keyAppVersionCode)
	if appErr != nil {
		return appErr
	}
	previousName, _, appErr := a.repository.Get(ctx, keyAppVersionName)
	if appErr != nil {
		return appErr
	}

	switch {
	case !exists:
		if _, appErr := a.Track(ctx, dto.TrackEventCommand{
			Event: entities.NewEvent(entities.EventNameNativeAppInstall, nil),
		}); appErr != nil {
			return appErr
		}
	case previousCode != versionCode:
		if _, appErr := a.Track(ctx, dto.TrackEventCommand{
			Event: entities.NewEvent(entities.EventNameNativeAppUpdate, map[string]any{
				"prev_version_name": previousName,
				"prev_version_code": previousCode,
			}),
		}); appErr != nil {
			return appErr
		}
	default:
		return nil
	}

	if appErr := a.repository.Put(ctx, keyAppVersionCode, versionCode); appErr != nil {
		return appErr
	}
	return a.repository.Put(ctx, keyAppVersionName, a.settings.AppInfo.VersionName)
}

// Foreground counts visible surfaces and reports the first one.
func (a *App) Foreground(ctx context.Context) {
	a.mu.Lock()
	a.foregroundCount++
	first := a.foregroundCount == 1
	a.mu.Unlock()
	if !first {
		return
	}
	if _, appErr := a.Track(ctx, dto.TrackEventCommand{
		Event: entities.NewEvent(entities.EventNameNativeAppForeground, nil),
	}); appErr != nil {
		a.logf("lifecycle event failed event=%s code=%s", entities.EventNameNativeAppForeground, appErr.Code)
	}
}

// Background reports when the last visible surface goes away.
func (a *App) Background(ctx context.Context) {
	a.mu.Lock()
	if a.foregroundCount == 0 {
		a.mu.Unlock()
		return
	}
	a.foregroundCount--
	last := a.foregroundCount == 0
	a.mu.Unlock()
	if !last {
		return
	}
	if _, appErr := a.Track(ctx, dto.TrackEventCommand{
		Event: entities.NewEvent(entities.EventNameNativeAppBackground, nil),
	}); appErr != nil {
		a.logf("lifecycle event failed event=%s code=%s", entities.EventNameNativeAppBackground, appErr.Code)
	}
}

// AppInfo is attached to every collection request.
func (a *App) AppInfo() *dto.AppInfo {
	settings := a.settings.AppInfo
	moduleInfo := map[string]string{coreModuleName: settings.SDKVersion}
	for _, library := range a.registry.Libraries() {
		if library.IsPublic() {
			moduleInfo[library.Name()] = library.Version()
		}
	}

	return &dto.AppInfo{
		VersionName:     settings.VersionName,
		VersionCode:     settings.VersionCode,
		KarteSDKVersion: settings.SDKVersion,
		PackageName:     settings.PackageName,
		SystemInfo: dto.SystemInfo{
			OS:       runtime.GOOS,
			Arch:     runtime.GOARCH,
			Language: languageTag(settings.Language),
		},
		ModuleInfo: moduleInfo,
	}
}

func languageTag(raw string) string {
	if raw == "" {
		return language.Und.String()
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return language.Und.String()
	}
	return tag.String()
}
