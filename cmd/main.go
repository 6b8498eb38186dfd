package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	debug  bool
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "magicbag",
	Short:         "magicbag - surplus food bag notifier",
	Long:          "Polls the marketplace around watched locations and announces available bags in Discord.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	cobra.OnInitialize(initLogger)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func initLogger() {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
