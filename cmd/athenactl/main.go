// Command athenactl is the CLI client for a running athenad: it
// queries status and manages links/routes over the control socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kuuji/athena/internal/control"
)

var version = "dev"

var globalSocketPath string

var rootCmd = &cobra.Command{
	Use:   "athenactl",
	Short: "Control a running athenad forwarder",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalSocketPath, "socket", "", "control socket path (default: autodetected)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the athenactl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func resolvedSocketPath() string {
	if globalSocketPath != "" {
		return globalSocketPath
	}
	return control.ResolveSocketPath()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
