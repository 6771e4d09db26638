// Package main runs the modular workspace shell.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xelth-com/modspace/internal/buildinfo"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "modspace",
	Short: "Modular workspace shell with an offline-first document cache",
	Long: `modspace serves a browser workspace whose modules (tasks, notes, assistant)
keep their documents in a local cache and synchronize them with a remote
data gateway in the background.

Configuration is read from the environment and an optional .env file.`,
	Version: buildinfo.Version,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(healthCmd)
}
