// Package crm parses CRM command flags and runs the MCP service on stdio.
package crm

import (
	"context"
	"flag"

	"github.com/rolodexhq/rolodex/internal/platform/cmd"
	server "github.com/rolodexhq/rolodex/internal/services/crm/app"
)

// Config holds CRM command configuration.
type Config struct {
	DBPath string `env:"ROLODEX_CRM_DB_PATH" envDefault:"data/crm.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the CRM SQLite database")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the CRM MCP service with telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServiceCRM, func(ctx context.Context) error {
		return server.Run(ctx, cfg.DBPath)
	})
}
