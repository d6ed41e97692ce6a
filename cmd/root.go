package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mdobak/go-xerrors"
	"github.com/spf13/cobra"

	"song-recognition/config"
	"song-recognition/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "song-recognition",
	Short:         "Recognize songs from captured audio, keeping failed attempts for later.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      cfg.LogLevel,
			OutputPath: cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	},
}

func init() {
	rootCmd.AddCommand(listenCmd, recognizeCmd, savedCmd, takeCmd, retryCmd, eraseCmd, serveCmd)
}

// Execute executes the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()

	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		if cfg != nil && cfg.LogLevel == logger.DebugLevel {
			xerrors.Print(err)
		}
		os.Exit(1)
	}
}
