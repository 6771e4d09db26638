package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xelth-com/modspace/internal/auth"
)

var serverURL string

// hashPasswordCmd prints the bcrypt hash for ACCESS_PASSWORD_HASH
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print the bcrypt hash to use as ACCESS_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

// healthCmd checks a running server
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of a running modspace server",
	Long: `Check the health status of a running modspace server.

Examples:
  # Check health
  modspace health

  # Check health on a different server
  modspace health --server http://localhost:8080`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&serverURL, "server", "http://localhost:3220", "modspace server URL")
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/health")
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var health struct {
		Status  string `json:"status"`
		Online  bool   `json:"online"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if health.Status != "ok" {
		return errors.New("server reported status " + health.Status)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Status: %s (gateway online: %t, version %s)\n", health.Status, health.Online, health.Version)
	return nil
}
