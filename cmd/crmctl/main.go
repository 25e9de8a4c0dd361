// Command crmctl administers a crm-local storage root: database migrations,
// backups, root changes, reports and document listings.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jobsturm/crm-local-sub000/internal/app"
	"github.com/jobsturm/crm-local-sub000/internal/config"
	"github.com/jobsturm/crm-local-sub000/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "crmctl",
	Short:         "Administer the crm-local data tree",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and a logger that writes to stderr
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openApp opens the active root with all services
func openApp() (*app.App, *zap.Logger, error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Open(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
