package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "patch-orch",
		Short: "GuardianAI patch orchestrator - autonomous security fix pipeline",
		Long: `GuardianAI patch orchestrator generates security fixes for GitHub
repositories, records every attempt as an auditable patch record, and
publishes accepted fixes as pull requests. Patches can be gated behind
human approval and certified with keyed signatures.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
