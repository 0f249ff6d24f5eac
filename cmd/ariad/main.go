package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/aria/pkg/api"
	"github.com/cuemby/aria/pkg/aria"
	"github.com/cuemby/aria/pkg/config"
	"github.com/cuemby/aria/pkg/events"
	"github.com/cuemby/aria/pkg/lifecycle"
	"github.com/cuemby/aria/pkg/log"
	"github.com/cuemby/aria/pkg/reconciler"
	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ariad",
	Short:   "ariad is the Aria multi-tenant agent control plane",
	Long:    "ariad provisions, launches, monitors, and reaps isolated per-tenant agent containers.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ariad version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "/etc/aria/ariad.toml", "Path to the control plane's own config.toml")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane: HTTP surface + supervisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return serve(cmd.Context(), configPath)
	},
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadControlPlane(configPath)
	if err != nil {
		return fmt.Errorf("load control plane config: %w", err)
	}

	registries, err := aria.Open(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer registries.Close()

	instances := registry.NewInstanceRegistry(registries.DB)

	binPath := cfg.DaemonBinary
	if env := os.Getenv("ZEROCLAW_BIN"); env != "" {
		binPath = env
	}
	lifecycleMgr := lifecycle.NewManager(instances, binPath, 10*time.Second)

	driver := runtime.NewCLIDriver(cfg.RuntimeBinary, cfg.InstancesDir, cfg.RuntimeNetwork, cfg.RuntimeImage)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sup := reconciler.NewReconciler(instances, reconciler.PruneConfig{
		Driver:     driver,
		IdleHours:  cfg.PruneIdleHours,
		MaxAgeDays: cfg.PruneMaxAgeDays,
	}, broker)
	sup.StartupReconcile(ctx)
	sup.Start()
	defer sup.Stop()

	srv := api.NewServer(instances, lifecycleMgr)

	addr := cfg.ListenAddr
	if port := os.Getenv("ZEROCLAW_CP_PORT"); port != "" {
		addr = ":" + port
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info(fmt.Sprintf("received %s, shutting down", sig))
		return nil
	}
}
