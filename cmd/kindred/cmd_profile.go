package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/kindred/internal/types"
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage user profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show a user's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		profile, err := a.profiles.Get(cmd.Context(), types.UserID(args[0]))
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		fmt.Fprintf(os.Stdout, "display_name = %s\n", profile.DisplayName)
		fmt.Fprintf(os.Stdout, "notify_address = %s\n", profile.NotifyAddress)
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <email> <field> <value>",
	Short: "Set a profile field (display_name, notify_address)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		userID := types.UserID(args[0])
		if err := a.profiles.Update(cmd.Context(), userID, map[string]string{args[1]: args[2]}); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Set %s for %s\n", args[1], userID)
		return nil
	},
}
