package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"magicbag/internal/bot"
	"magicbag/internal/handlers"
	"magicbag/internal/jobs/background"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Discord bot, the poll scheduler and the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	discord, err := bot.New(a.cfg.DiscordToken, a.cfg.CommandPrefix, a.store.Channels, a.locations, logger)
	if err != nil {
		return err
	}

	scheduler, err := background.NewJobScheduler(a.pollService(discord), a.cfg.PollInterval, logger)
	if err != nil {
		return err
	}

	e := handlers.NewRouter(handlers.Handlers{
		Health:    handlers.NewHealthHandlers(a.store, a.cache, version),
		Catalog:   handlers.NewCatalogHandlers(a.store.Items, a.store.Stores, logger),
		Locations: handlers.NewLocationHandlers(a.locations, logger),
		Poll:      handlers.NewPollHandlers(scheduler, logger),
	}, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return discord.Run(ctx)
	})

	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		return scheduler.Stop()
	})

	g.Go(func() error {
		logger.Info("http server listening", "addr", a.cfg.HTTPAddr)
		if err := e.Start(a.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
