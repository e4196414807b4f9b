package main

import (
	"fmt"
	"strconv"

	"github.com/jonathan/factor-engine/internal/config"
	"github.com/jonathan/factor-engine/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes job submission, control, streaming, CSV
upload, equation analysis, and export endpoints, backed by a worker queue and
PostgreSQL persistence. DATABASE_URL must be set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to YAML config file (environment variables override it)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = strconv.Itoa(servePort)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
