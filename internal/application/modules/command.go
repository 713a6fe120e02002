package modules

import (
	"net/url"
	"strings"
)

const (
	karteSchemePrefix    = "krt-"
	karteSchemeLength    = 36
	legacySettingsScheme = "app-settings"
)

// IsKarteScheme reports whether command uses an app-specific krt- scheme.
func IsKarteScheme(command *url.URL) bool {
	if command == nil {
		return false
	}
	scheme := command.Scheme
	return strings.HasPrefix(scheme, karteSchemePrefix) && len(scheme) == karteSchemeLength
}

type CommandResult struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

type builtinCommand struct {
	validate func(command *url.URL) bool
	execute  func(packageName string) CommandResult
}

var builtinCommands = []builtinCommand{
	{
		validate: func(command *url.URL) bool {
			return command.Scheme == legacySettingsScheme ||
				(IsKarteScheme(command) && command.Host == "open-settings")
		},
		execute: func(packageName string) CommandResult {
			return CommandResult{Action: "open_settings", Target: "package:" + packageName}
		},
	},
	{
		validate: func(command *url.URL) bool {
			return IsKarteScheme(command) && command.Host == "open-store"
		},
		execute: func(packageName string) CommandResult {
			return CommandResult{Action: "open_store", Target: "market://details?id=" + packageName}
		},
	},
}

// ExecuteBuiltinCommands runs the commands the core understands without a
// module.
func ExecuteBuiltinCommands(command *url.URL, packageName string) []any {
	results := make([]any, 0)
	if command == nil {
		return results
	}
	for _, builtin := range builtinCommands {
		if builtin.validate(command) {
			results = append(results, builtin.execute(packageName))
		}
	}
	return results
}
