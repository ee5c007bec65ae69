package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/kindred/internal/delivery"
	"github.com/user/kindred/internal/orchestrator"
	"github.com/user/kindred/internal/rollup"
	"github.com/user/kindred/internal/scheduler"
	"github.com/user/kindred/internal/telegram"
	"github.com/user/kindred/internal/types"
	"github.com/user/kindred/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kindred daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "kindred.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("kindred started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"store_backend", cfg.Store.Backend,
		"rollup_schedule", cfg.Companion.RollupSchedule,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	// Delivery registry
	deliveryReg := delivery.NewRegistry()

	// Telegram adapter
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.orch.Respond, a.profiles, a.users, slog.Default())
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")

		deliveryReg.Register("telegram:", adapter.SendTo)
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// Push each morning's check-in to users with a linked channel.
	a.runner.OnResult(func(ctx context.Context, userID types.UserID, result *rollup.Result) {
		profile, err := a.profiles.Get(ctx, userID)
		if err != nil || profile.NotifyAddress == "" {
			return
		}
		message := result.Notification
		if result.Greeting != "" {
			message = result.Greeting
		}
		if err := deliveryReg.Deliver(profile.NotifyAddress, message); err != nil {
			slog.Error("check-in delivery failed", "user", userID, "error", err)
		}
	})

	// Daily rollup on the cron schedule
	sched := scheduler.New(cfg.Companion.RollupSchedule, func(ctx context.Context) {
		if err := a.runner.Run(ctx); err != nil {
			slog.Error("rollup run failed", "error", err)
		}
	}, slog.Default())
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Webhook HTTP server
	if cfg.HTTP.Enabled {
		chat := func(ctx context.Context, userID types.UserID, message string) (*orchestrator.Reply, error) {
			return a.orch.Respond(ctx, userID, message)
		}
		task := func(ctx context.Context, userID types.UserID) (*rollup.Result, error) {
			return a.job.RunForUser(ctx, userID)
		}
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: webhook.NewServer(chat, task),
		}
		go func() {
			slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("webhook server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	slog.Info("shutting down", "signal", sig)
	return nil
}
