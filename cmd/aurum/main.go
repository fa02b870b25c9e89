// Command aurum runs the adaptive state-to-action engine: the HTTP and
// WebSocket service, one-shot ticks and check-ins, inspection of stored
// state, fixture replay and the text inference server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/config"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/logging"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region root

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "aurum",
		Short:        "Adaptive state-to-action engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file; created with defaults if missing")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (overrides store.path)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (overrides logging.level)")

	root.AddCommand(
		newServeCmd(g),
		newTickCmd(g),
		newCheckInCmd(g),
		newActionCmd(g),
		newFeedbackCmd(g),
		newInspectCmd(g),
		newReplayCmd(),
		newExportCmd(g),
		newCatalogCmd(),
		newInferdCmd(g),
		newDeviceCmd(),
	)
	return root
}

// load reads the configuration, applies flag overrides and installs the
// global logger. The returned function closes the log file.
func (g *globalFlags) load() (*config.Config, func() error, error) {
	cfg, err := config.LoadFromPath(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = g.dbPath
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	closeLog, err := logging.Setup(cfg.Logging.ToLoggingConfig())
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

// #endregion root
