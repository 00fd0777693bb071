// Package main is the entry point for the chunkproxy server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Set by release ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chunkproxy:", err)
		os.Exit(1)
	}
}

func rootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "chunkproxy",
		Short:         "Key-injecting streaming proxy for chat providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), serveCmd(v), providersCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chunkproxy %s (commit: %s)\n", version, commit)
		},
	}
}
