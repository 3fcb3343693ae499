package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/media-scraper/pkg/config"
)

// errSilent signals a failure whose details were already printed
var errSilent = errors.New("")

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	logLevel  string
	logFormat string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "media-scraper",
		Short: "Crawl websites and download their images, videos, audio and documents",
		Long: `media-scraper walks a website depth-first from a seed URL, collects the media
it references and downloads it with a bounded worker pool. Every run writes a
manifest (results.json, results.csv, media.zip) next to the downloaded files.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text or json)")

	cmd.AddCommand(NewCrawlCmd(opts))
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewListSitesCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// setupLogger creates a configured logrus.Logger writing to out
func setupLogger(opts *rootOptions, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if opts.logFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
		if opts.logFormat != "" && opts.logFormat != "text" {
			log.Warnf("Unknown log format '%s', using text", opts.logFormat)
		}
	}
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", opts.logLevel, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}
	return log
}

// loadConfig reads a YAML config file without validating it
func loadConfig(path string) (*config.AppConfig, error) {
	return config.LoadFile(path)
}
