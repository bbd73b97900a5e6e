package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	cfgPkg "github.com/xhad/ragingest/pkg/config"
	"github.com/xhad/ragingest/pkg/correlation"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	dbURL      string
	ollamaURL  string

	cfg    *cfgPkg.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragingest",
	Short: "Ingest documents into a pgvector knowledge base",
	Long: `ragingest stores uploaded documents, splits them into overlapping chunks,
embeds every chunk and persists the vectors for retrieval.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config file")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	flags.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string")
	flags.StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// setup loads the config, lets flags override it and builds the root logger.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		loaded.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		loaded.Logging.Format = logFormat
	}
	if flags.Changed("db-url") {
		loaded.Database.URL = dbURL
	}
	if flags.Changed("ollama-url") {
		loaded.Embedding.BaseURL = ollamaURL
	}

	if errs := loaded.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	cfg = loaded
	logger = newLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return nil
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(correlation.NewHandler(h))
}
