// Package cli wires the radar commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "radar",
	Short: "Watch VK and Telegram sources for keyword matches",
	Long: "radar polls VK community walls and Telegram channels, matches new posts\n" +
		"against a keyword list, and forwards hits to Telegram chats via a bot.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("radar %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "radar.yaml", "path to the configuration file")
	rootCmd.AddCommand(runCmd, authCmd, versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
