package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/resonancehq/resonance/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/resonancehq/resonance/cmd.Version=v1.0.0"
var Version = "dev"

var (
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "resonance",
	Short: "Resonance — local AI host",
	Long: "Resonance: a single-user AI host that runs on your machine. It drives an LLM " +
		"through local tools, keeps long-term memory and learned skills, watches the system " +
		"through background sentinels, and serves a WebSocket chat stream plus a REST control " +
		"surface on localhost.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "", "host data directory (default: ~/.resonance or $RESONANCE_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("resonance %s\n", Version)
		},
	}
}

// resolveDataDir honors the --data flag first, then $RESONANCE_DATA_DIR,
// then ~/.resonance.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if v := os.Getenv("RESONANCE_DATA_DIR"); v != "" {
		return v
	}
	return config.DefaultDataDir()
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
