package commands

import (
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/leadbridge/internal/app"
)

// loadConfig loads application configuration from various sources with precedence:
// config file → environment variables → CLI flags → defaults
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	var flags map[string]any
	if cmd != nil {
		flags = extractAndTransformFlags(cmd)
	}
	return app.LoadConfig(configPath, flags, environFunc)
}

// localFlags are command inputs that do not belong to the config structure.
var localFlags = map[string]bool{
	"config": true,
	"c":      true,
	"code":   true,
	"name":   true,
	"email":  true,
	"phone":  true,
}

// extractAndTransformFlags transforms CLI flag names to match config structure.
// Includes parent flags. Examples: --server--host → server.host, --log-level → log_level
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// FlagNames() includes flags from parent commands (via lineage)
	for _, name := range cmd.FlagNames() {
		if localFlags[name] {
			continue
		}
		// Skip unset flags to preserve precedence from earlier config sources
		if !cmd.IsSet(name) {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			values[key] = value
		}
	}

	return values
}
