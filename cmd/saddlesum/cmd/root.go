package cmd

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/SaddleSum/internal/config"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	return nil
}

func (a *app) logger(w io.Writer) *slog.Logger {
	return newLogger(w, a.cfg.Logging)
}

func newLogger(w io.Writer, lc config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "saddlesum",
		Short:         "SaddleSum term enrichment",
		Long:          "Ranks annotated terms by the significance of the summed weights of their entities.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newImportCmd(a))
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
