package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/parsec-core/pkg/log"
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
	Use:   "parsec-core-cli",
	Short: "Inspect a parsec-core device profile",
	Long: `parsec-core-cli opens a device's local certificate store and
manifest cache read-only, for inspecting certificate sync state and
resolving workspace paths without a running client.

It talks to the server through an in-memory fake transport rather than
a real network client, so it runs standalone against whatever a device
has already synced to disk.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"parsec-core-cli version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to device config YAML")
	rootCmd.PersistentFlags().String("data-dir", "", "Override data_dir from config")
	rootCmd.PersistentFlags().String("device-secret-file", "", "Override device_secret_file from config")
	rootCmd.PersistentFlags().String("root-verify-key", "", "Override root_verify_key (hex) from config")
	rootCmd.PersistentFlags().String("user-id", "", "Override user_id from config")
	rootCmd.PersistentFlags().String("device-id", "", "Override device_id from config")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(pathCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
