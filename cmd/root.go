package cmd

import (
	"os"

	"github.com/brk3/streakmate/internal/apiclient"
	"github.com/brk3/streakmate/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "habits",
	Short: "Build and break habits with streaks and an accountability partner",
	Long: `
	Habits tracks daily habits you want to build or break. Each scheduled day is
	marked as a success, failure or skip, streaks are kept for you, and an
	accountability partner can follow the habits you choose to share.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// newClient loads the config and returns an API client for it.
func newClient() (*apiclient.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return apiclient.New(cfg.APIBaseURL, cfg.AuthToken), cfg, nil
}
