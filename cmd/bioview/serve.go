package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/bioview/internal/config"
	"github.com/jonathan/bioview/internal/server"
	"github.com/jonathan/bioview/internal/server/ratelimit"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server exposing phylogeny job submission, polling and structure lookups.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}

	jwtCfg, err := config.NewJWTConfigFrom(a.Config.JWTSecret, os.Getenv("API_JWT_EXPIRATION_HOURS"))
	if err != nil {
		a.Close()
		return err
	}

	port := a.Config.Port
	if servePort != "" {
		port = servePort
	}

	srv, err := server.New(server.Config{
		Port:         port,
		Phylogeny:    a.Phylogeny,
		Structures:   a.Structures,
		RateLimit:    ratelimit.LoadConfig(),
		JWT:          jwtCfg,
		PollInterval: a.Config.PollInterval.Std(),
		Ping:         a.Ping,
		OnShutdown:   a.Close,
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
