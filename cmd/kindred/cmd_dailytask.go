package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/kindred/internal/types"
)

func init() {
	rootCmd.AddCommand(dailyTaskCmd)
	dailyTaskCmd.Flags().String("email", "", "run for a single user instead of everyone")
}

var dailyTaskCmd = &cobra.Command{
	Use:   "dailytask",
	Short: "Run the daily rollup now",
	Long: `Runs the morning rollup out of schedule: follow up on due life
events, clear surfaced ones, and summarize the last conversation day.
With --email the rollup runs for one user and prints the check-in text.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		email, _ := cmd.Flags().GetString("email")
		if email != "" {
			result, err := a.job.RunForUser(cmd.Context(), types.UserID(email))
			if err != nil {
				return fmt.Errorf("rollup for %s: %w", email, err)
			}
			if result.Greeting != "" {
				fmt.Fprintf(os.Stdout, "greeting: %s\n", result.Greeting)
			}
			fmt.Fprintf(os.Stdout, "notification: %s\n", result.Notification)
			return nil
		}

		return a.runner.Run(cmd.Context())
	},
}
