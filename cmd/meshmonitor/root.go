package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/config"
	"github.com/meshmonitor/meshmonitor/internal/gateway"
	"github.com/meshmonitor/meshmonitor/internal/logging"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "meshmonitor",
		Short:         "Meshtastic mesh-network gateway and state store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")

	root.AddCommand(newServeCmd(&configFile))
	root.AddCommand(newMigrateCmd(&configFile))
	return root
}

func loadConfig(configFile string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(viper.New(), configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: radio session, ingest, scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			svc, err := gateway.New(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return svc.Start(ctx)
		},
	}
}

func newMigrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := store.Open(cfg.Store.Path, log)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(db); err != nil {
				return err
			}
			version, err := db.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("migrations applied", zap.Int("schemaVersion", version))
			return nil
		},
	}
}
