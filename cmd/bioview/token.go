package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/bioview/internal/config"
	"github.com/jonathan/bioview/internal/server"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token",
	Long: `Mint a bearer token for the REST API. The server only requires tokens when
API_JWT_SECRET is set.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Client name to embed in the token")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	jwtCfg, err := config.NewJWTConfigFrom(cfg.JWTSecret, os.Getenv("API_JWT_EXPIRATION_HOURS"))
	if err != nil {
		return err
	}
	if jwtCfg == nil {
		return fmt.Errorf("API_JWT_SECRET is not set; authentication is disabled")
	}

	token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenSubject)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
