package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/replayio/overseer/pkg/config"
	"github.com/replayio/overseer/pkg/github"
	"github.com/replayio/overseer/pkg/lifecycle"
	"github.com/replayio/overseer/pkg/log"
	"github.com/replayio/overseer/pkg/machines"
	"github.com/replayio/overseer/pkg/runtime/docker"
	"github.com/replayio/overseer/pkg/serve"
	"github.com/replayio/overseer/pkg/store"
)

var (
	serveAddr       string
	serveDBPath     string
	serveConfigPath string
	serveLogLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration server",
	Long: `Run the HTTP server: webhook ingestion, status reporting, and the launch
trigger, plus the lifecycle workers that provision execution units.

With a Machine API token configured, units are provisioned remotely;
otherwise a local docker backend is used for development.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := log.Init(log.Config{Level: log.Level(serveLogLevel)}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer log.Sync()

		cfg, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr = serveAddr
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath = serveDBPath
		}

		st, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		provisioner, err := buildProvisioner(cfg)
		if err != nil {
			return err
		}

		manager, err := lifecycle.NewManager(lifecycle.Config{
			Store:         st,
			Provisioner:   provisioner,
			RepoChecker:   github.NewChecker(cfg.GitHubToken),
			WebhookURL:    cfg.WebhookURL,
			WebhookSecret: cfg.WebhookSecret,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		manager.Start(ctx)
		defer manager.Wait()

		srv := serve.New(serve.Config{
			Store:    st,
			Launcher: manager,
			Secret:   cfg.WebhookSecret,
		})

		if err := srv.Start(ctx, cfg.Addr); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func buildProvisioner(cfg *config.Config) (lifecycle.Provisioner, error) {
	if cfg.MachineToken == "" {
		log.Warn("no machine token configured, using local docker backend")
		return docker.NewRuntime(cfg.AgentImage, 0)
	}

	if err := cfg.ValidateRemote(); err != nil {
		return nil, err
	}

	client, err := machines.NewClient(machines.Config{
		BaseURL: cfg.MachineAPIURL,
		App:     cfg.MachineApp,
		Token:   cfg.MachineToken,
	})
	if err != nil {
		return nil, err
	}

	return lifecycle.NewMachineProvisioner(lifecycle.MachineProvisionerConfig{
		Client:  client,
		Image:   cfg.AgentImage,
		AppHost: cfg.AppHost,
	})
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "overseer.db", "Path to the sqlite database")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "overseer.yaml", "Path to the config file")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)
}
