package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/config"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/store"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errorColor.Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}

// app carries the resolved configuration between the root and subcommands.
type app struct {
	cfgPath string
	dbPath  string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "momentctl",
		Short:         "Learn daily routines and find the right moment before a deadline activity",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "momentctl.yaml", "path to YAML config")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to the SQLite database (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newImportCmd(a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newRecomputeCmd(a))
	root.AddCommand(newPredictCmd(a))
	root.AddCommand(newMomentCmd(a))
	root.AddCommand(newValuesCmd(a))
	root.AddCommand(newSimulateCmd(a))
	root.AddCommand(newInspectCmd(a))
	return root
}

// #endregion main

// #region wiring

func (a *app) init() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: a.verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// withEngine opens the store for the duration of fn.
func (a *app) withEngine(fn func(*store.Store, *engine.Engine) error) error {
	st, err := store.NewStore(a.cfg.DBPath,
		store.WithCacheSize(a.cfg.Engine.CacheSize),
		store.WithBusyRetry(a.cfg.Engine.BusyRetries, a.cfg.Engine.RetryDelay),
		store.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(st, st, st, logging.NewRecorder(st.DB()), a.logger, a.cfg.EngineConfig())
	return fn(st, eng)
}

// #endregion wiring
