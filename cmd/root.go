package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"rollingdoor-backend/config"
	"rollingdoor-backend/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfgFile string
	cfg     *config.Config
	db      *gorm.DB
)

var rootCmd = &cobra.Command{
	Use:   "rollingdoor",
	Short: "Rolling door access control backend",
	Long: `Backend for rolling door controllers: users claim devices, share them
with invite PINs and send OPEN/CLOSE/STOP commands to connected doors.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		initLogger(cfg)

		db, err = database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		return nil
	},
}

// closeDB runs after every command, including one that returned an error.
func closeDB() {
	if db == nil {
		return
	}
	if err := database.Close(db); err != nil {
		slog.Warn("Closing database failed", "error", err)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Initialize logger
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO", "":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
		fmt.Fprintf(os.Stderr, "Invalid log level %q, defaulting to INFO\n", cfg.LogLevel)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Debug("Logger initialized", "level", level.String())
	return logger
}

func init() {
	cobra.OnFinalize(closeDB)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}
