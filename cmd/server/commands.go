package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/phrazzld/shipping-api/internal/config"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
	"github.com/phrazzld/shipping-api/internal/platform/postgres"
)

type options struct {
	configFile string
	migrate    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "shipping-api",
		Short: "Shipping records API",
		Long: `Shipping records API.
Serves destinations, items, packages and shipments over HTTP and manages the
Postgres schema they are stored in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"path to a config file (default: ./config.yaml when present)")

	root.AddCommand(newServeCmd(opts), newMigrateCmd(opts))
	return root
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(opts.configFile)
			if err != nil {
				return err
			}

			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.cleanup()

			if opts.migrate {
				if err := app.migrate(cmd.Context(), postgres.MigrateUp); err != nil {
					return err
				}
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect the embedded Postgres migrations.`,
	}

	for _, sub := range []struct {
		command, short string
	}{
		{postgres.MigrateUp, "Apply all pending migrations"},
		{postgres.MigrateDown, "Roll back the most recent migration"},
		{postgres.MigrateReset, "Roll back all migrations"},
		{postgres.MigrateStatus, "Show the status of every migration"},
		{postgres.MigrateVersion, "Show the current schema version"},
	} {
		command := sub.command
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := bootstrap(opts.configFile)
				if err != nil {
					return err
				}
				if cfg.Database.Driver != config.DriverPostgres {
					return fmt.Errorf("migrations require the %s driver, configured driver is %s",
						config.DriverPostgres, cfg.Database.Driver)
				}

				app, err := newApplication(cmd.Context(), cfg, log)
				if err != nil {
					return err
				}
				defer app.cleanup()
				return app.migrate(cmd.Context(), command)
			},
		})
	}
	return cmd
}

// bootstrap loads the configuration and sets up the default logger.
func bootstrap(configFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled))
	return cfg, log, nil
}
