package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HerbHall/pulsedeck/internal/server"
	"github.com/HerbHall/pulsedeck/pkg/models"
	"github.com/spf13/cobra"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt an integration credentials document",
	Long: `Read a credentials JSON document from stdin and print the encrypted blob
stored in the integrations table.

Examples:
  echo '{"url":"http://nas.lan","api_key":"..."}' | pulsedeck encrypt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := server.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cipher, err := newCipher(v)
		if err != nil {
			return err
		}

		var creds models.Credentials
		dec := json.NewDecoder(cmd.InOrStdin())
		dec.DisallowUnknownFields()
		if err := dec.Decode(&creds); err != nil {
			return fmt.Errorf("decode credentials: %w", err)
		}
		if creds.URL == "" {
			return errors.New("credentials: url is required")
		}

		blob, err := cipher.Seal(creds)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), blob)
		return nil
	},
}
