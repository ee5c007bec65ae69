package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/kindred/internal/types"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <email> [message]",
	Short: "Talk to the companion from the terminal",
	Long: `Send a single message, or start an interactive session when no
message is given. End an interactive session with /quit or Ctrl-D.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		userID := types.UserID(args[0])
		ctx := cmd.Context()

		if len(args) > 1 {
			return sendOne(ctx, a, userID, strings.Join(args[1:], " "))
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			if err := sendOne(ctx, a, userID, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	},
}

func sendOne(ctx context.Context, a *app, userID types.UserID, message string) error {
	reply, err := a.orch.Respond(ctx, userID, message)
	if err != nil {
		return err
	}
	fmt.Println(reply.Text)

	// Persistence runs in the background; give it a moment to land
	// before the process can exit.
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := reply.Persisted.Wait(waitCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: turn may not be saved: %v\n", err)
	}
	return nil
}
