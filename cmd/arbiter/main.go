// Command arbiter serves, replays and inspects identity-continuity sessions.
package main

import (
	"fmt"
	"os"

	"github.com/danielpatrickdp/continuity-arbiter/internal/config"
	"github.com/danielpatrickdp/continuity-arbiter/internal/logging"
	"github.com/danielpatrickdp/continuity-arbiter/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region root

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "arbiter",
		Short: "Identity-continuity and safety arbitration service",
		Long: `arbiter runs the temporal identity, failure detection, subjectivity,
guardrail and integration engines for each conversation turn.

Configuration is read from --config (YAML, optional) and ARBITER_-prefixed
environment variables, e.g. ARBITER_SUBJECTIVITY_EMA_ALPHA=0.2.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newReplayCmd(opts))
	root.AddCommand(newInspectCmd(opts))
	root.AddCommand(newReconcileCmd(opts))
	root.AddCommand(newRollbackCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion root

// #region shared

// load reads the effective config and a logger for it. Rejected keys are
// logged once the logger exists.
func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, rejected, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	for _, key := range rejected {
		logger.Warn("config value ignored, using default", zap.String("key", key), zap.String("env", config.EnvName(key)))
	}
	return cfg, logger, nil
}

// openStore opens dbPath, or store.path from the config when dbPath is empty.
func (o *rootOptions) openStore(dbPath string, logger *zap.Logger) (*state.Store, error) {
	if dbPath == "" {
		cfg, _, err := o.load()
		if err != nil {
			return nil, err
		}
		dbPath = cfg.Store.Path
	}
	store, err := state.NewStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// #endregion shared
