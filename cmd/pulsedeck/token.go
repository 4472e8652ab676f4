package main

import (
	"fmt"
	"time"

	"github.com/HerbHall/pulsedeck/internal/auth"
	"github.com/HerbHall/pulsedeck/internal/config"
	"github.com/HerbHall/pulsedeck/internal/server"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API token",
	Long: `Sign a bearer token for the admin API with the configured auth.jwt_secret.

Examples:
  pulsedeck token
  pulsedeck token --subject ci --ttl 1h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := server.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg := auth.DefaultConfig()
		if err := config.Section(v, "auth", &cfg); err != nil {
			return err
		}
		tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.AccessTokenTTL)
		if err != nil {
			return err
		}
		token, err := tokens.IssueAccessToken(tokenSubject, auth.RoleAdmin, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default auth.access_token_ttl)")
}
