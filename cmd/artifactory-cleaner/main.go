package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "artifactory-cleaner",
	Short: "Find, archive and delete stale Artifactory artifacts",
	Long: `artifactory-cleaner discovers artifacts that have not been used in a long time,
reports how much storage they hold by age, and archives or deletes them.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	configPath   string
	endpointFlag string
	apiKeyFlag   string
	verbose      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a configuration file with endpoint and API key (default ~/.artifactory-cleaner/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&endpointFlag, "endpoint", "e", "", "Artifactory endpoint URL")
	rootCmd.PersistentFlags().StringVarP(&apiKeyFlag, "api-key", "k", "", "Artifactory API key")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose mode; log debug information to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(listReposCmd)
	rootCmd.AddCommand(usageReportCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
