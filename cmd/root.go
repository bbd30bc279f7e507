package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mocap/config"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string
	logLevel   string

	// reloads receives configurations picked up by the file watcher.
	reloads = make(chan *config.Config, 1)
)

var rootCmd = &cobra.Command{
	Use:     "mocap",
	Short:   "Live skeleton capture, smoothing and streaming",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			err := config.Load(cmd.Context(), configPath, func(old, new *config.Config) {
				select {
				case reloads <- new:
				default:
					// The previous reload has not been applied yet; the
					// newest one wins.
					select {
					case <-reloads:
					default:
					}
					reloads <- new
				}
			})
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		}
		level := config.Get().LogLevel
		if logLevel != "" {
			level = logLevel
		}
		lvl, err := log.ParseLevel(level)
		if err != nil {
			return err
		}
		log.SetLevel(lvl)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "JSON configuration file, watched for changes")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides the configuration")
}
