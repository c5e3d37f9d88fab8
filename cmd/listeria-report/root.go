package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/listeria.report/internal/config"
	"github.com/banshee-data/listeria.report/internal/db"
	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/mongostore"
	"github.com/banshee-data/listeria.report/internal/samples"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// app is the state shared by every subcommand once the root has loaded the
// configuration.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
	flush      func()
}

// RootCommand builds the listeria-report command tree.
func RootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "listeria-report",
		Short:         "Listeria environmental monitoring dashboard",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := cmd.Annotations[skipConfig]; ok {
				return nil
			}
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.flush != nil {
				a.flush()
			}
		},
	}

	setupFlags(rootCmd, a)

	rootCmd.AddCommand(
		serveCommand(a),
		migrateCommand(a),
		importCommand(a),
		userCommand(a),
		exportTrendCommand(a),
		versionCommand(),
	)
	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, a *app) {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to a .json or .yaml config file")
	pf.String("db-path", "", "SQLite database path (default listeria.db)")
	pf.Bool("debug", false, "Enable debug logging")

	_ = a.v.BindPFlag("db_path", pf.Lookup("db-path"))
	_ = a.v.BindPFlag("debug", pf.Lookup("debug"))
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := monitoring.NewZapLogger(cfg.Debug)
	if err != nil {
		return err
	}
	a.flush = monitoring.UseZap(logger)
	return nil
}

// openDB opens the sqlite database, migrating it to the latest schema.
func (a *app) openDB() (*db.DB, error) {
	return db.NewDB(a.cfg.GetDBPath())
}

// openStore returns the configured record store. The sqlite store reuses
// database, so the returned close function only releases mongo clients.
func (a *app) openStore(ctx context.Context, database *db.DB) (samples.Store, func(), error) {
	switch a.cfg.GetStore() {
	case config.StoreMongo:
		m := a.cfg.Mongo
		store, err := mongostore.New(ctx, m.URI, m.Database, m.Collection)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(context.Background()); err != nil {
				monitoring.Logf("failed to disconnect from mongo: %v", err)
			}
		}, nil
	case config.StoreSQLite:
		return database, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", a.cfg.GetStore())
	}
}
