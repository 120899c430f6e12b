package main

import (
	"github.com/fedspending/data-broker/internal/config"
	"github.com/fedspending/data-broker/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:          "broker",
	Short:        "Generates and tracks derived submission files",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(statusCmd)
}

// initLogging installs the global zap logger at the configured level and returns the cleanup.
func initLogging(cfg *config.Config) func() {
	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger := log.InitLog(logLvl, log.WithFormat(cfg.Service.LogFormat))
	undo := zap.ReplaceGlobals(logger)

	return func() {
		_ = logger.Sync()
		undo()
	}
}
