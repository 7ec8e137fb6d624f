package main

import (
	"fmt"
	"os"

	"github.com/cuemby/hearth/pkg/config"
	"github.com/cuemby/hearth/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hearthctl",
	Short: "hearthctl - control a running hearthd over its IPC socket",
	Long: `hearthctl connects to a local hearthd daemon's Unix socket, receives the
daemon's capability offer, and issues process-store and peer-directory
requests against it.`,
	Version: Version,
}

var socketPath string

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hearthctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.Default().IPCSocketPath,
		"Path to the hearthd IPC socket")

	cobra.OnInitialize(func() {
		log.Init(log.Config{Level: log.WarnLevel, Output: os.Stderr})
	})

	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(psCmd)
}
