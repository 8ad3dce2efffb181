package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"termin-notifier/config"
	"termin-notifier/poll"
	"termin-notifier/scraper"
	"termin-notifier/server"
	"termin-notifier/storage"
	"termin-notifier/telegram"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poll loop, Telegram bot, and admin HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateForServe(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Storage.SubscribersFile, logger)
	if err != nil {
		return fmt.Errorf("open subscriber store: %w", err)
	}

	// A configured default chat is subscribed up front so a fresh deploy
	// notifies its operator without a /subscribe round trip.
	if cfg.Telegram.DefaultChatID != 0 {
		if _, err := store.Add(cfg.Telegram.DefaultChatID); err != nil {
			return fmt.Errorf("add default subscriber: %w", err)
		}
	}

	baseURL := cfg.Poll.BaseURL
	if baseURL == "" {
		baseURL = scraper.DefaultBaseURL
	}
	checker := scraper.NewWithBaseURL(baseURL, logger)

	client := telegram.NewClient(cfg.Telegram.BotToken, logger)
	notifier := telegram.NewNotifier(client, store, logger)
	monitor := poll.NewMonitor(checker, notifier, logger)
	bot := telegram.NewBot(client, client, store, monitor, cfg.Poll.IntervalMinutes, logger)
	admin := server.New(monitor, cfg.Server.ListenAddr, logger)

	logger.Info("Starting terminbot",
		"version", Version,
		"interval_minutes", cfg.Poll.IntervalMinutes,
		"subscribers", store.Count())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitor.Run(ctx, time.Duration(cfg.Poll.IntervalMinutes)*time.Minute)
	}()
	go func() {
		defer wg.Done()
		bot.Run(ctx)
	}()

	err = admin.ListenAndServe(ctx)
	stop()
	wg.Wait()

	logger.Info("Shutdown complete")
	return err
}
