package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/syncq/internal/cmd/client"
	serverrun "github.com/rzbill/syncq/internal/cmd/server"
	pebblestore "github.com/rzbill/syncq/internal/storage/pebble"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "syncq",
		Short: "syncq runtime CLI",
		Long:  "syncq is a persistent, coalescing sync queue. This CLI runs the server and drives its queue.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the syncq server (HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := serverrun.LoadConfig(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("data-dir") {
				cfg.DataDir, _ = flags.GetString("data-dir")
			}
			if flags.Changed("http") {
				cfg.HTTPAddr, _ = flags.GetString("http")
			}
			if flags.Changed("fsync") {
				mode, _ := flags.GetString("fsync")
				if _, err := pebblestore.ParseFsyncMode(mode); err != nil {
					return fmt.Errorf("invalid --fsync; use always|interval|never")
				}
				cfg.Fsync = mode
			}
			if flags.Changed("coalesce-ms") {
				cfg.CoalesceWindowMs, _ = flags.GetInt64("coalesce-ms")
			}
			if flags.Changed("failure-policy") {
				cfg.FailurePolicy, _ = flags.GetString("failure-policy")
			}
			if flags.Changed("log-level") {
				cfg.Log.Level, _ = flags.GetString("log-level")
			}
			if flags.Changed("log-format") {
				cfg.Log.Format, _ = flags.GetString("log-format")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("SYNCQ_CONFIG"), "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", "127.0.0.1:8787", "HTTP listen address")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int64("coalesce-ms", 300, "Coalescing window in ms")
	serverStartCmd.Flags().String("failure-policy", "halt", "On processor failure: halt|isolate")
	serverStartCmd.Flags().String("log-level", "info", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "text", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewQueueCommand(clientcmd.BaseURLFromEnv))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
