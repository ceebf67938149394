package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TnZzZHlp/ai-forward/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "ai-forward", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
