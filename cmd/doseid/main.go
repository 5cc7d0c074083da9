package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doseidotio/doseid/pkg/config"
	"github.com/doseidotio/doseid/pkg/daemon"
	"github.com/doseidotio/doseid/pkg/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "doseid",
	Short: "Doseid - Single-node container orchestrator daemon",
	Long: `Doseid deploys applications as containers on a single node and
serves them behind a TLS-terminating reverse proxy with automatic
certificates.

The daemon expects a local container runtime, a PostgreSQL database,
and a cluster-init file written by the installer.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New()
		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}
		return d.Run()
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Doseid version %s\nCommit: %s\nBuilt: %s\n",
		version.Version, version.Commit, version.BuildTime,
	))
}
