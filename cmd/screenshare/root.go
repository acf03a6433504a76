package main

import (
	"context"
	"os"
	"os/signal"
	"screenshare/config"
	"screenshare/internal/ui"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagServer      string
	flagSTUN        string
	flagLogLevel    string
	flagSubprotocol string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screenshare",
	Short: "Share or view a screen through a screenshare relay",
	Long: `screenshare joins a room on a screenshare relay and either shares a video
file as its screen or views whatever the room's sharer is showing.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()

		var err error
		cfg, err = config.Load(config.Options{
			LogLevel:   flagLogLevel,
			ServerURL:  flagServer,
			STUNServer: flagSTUN,
		})
		if err != nil {
			return err
		}

		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return nil
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Relay base URL (env SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "loglevel", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagSubprotocol, "protocol", "msgpack", "WebSocket subprotocol: json or msgpack")
}
