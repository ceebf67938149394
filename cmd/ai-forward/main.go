// Package main is the entry point for ai-forward.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ai-forward",
	Short: "Authenticated gateway for OpenAI-compatible LLM providers",
	Long: `ai-forward sits between clients and multiple upstream LLM providers,
presenting a single virtual model catalog. It load-balances providers and
API keys by least usage, relays streaming and non-streaming completions,
caches exchanges by conversation transcript, and bans clients that
repeatedly fail authentication.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: $CONFIG_PATH or ./config.json)")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
