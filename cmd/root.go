package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/redactor/internal/assemble"
	"github.com/andresmejia3/redactor/internal/storage"
	"github.com/andresmejia3/redactor/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Catalogs is the metadata store shared by subcommands
	Catalogs store.CatalogStore
	// Objects holds frames, chunk documents and videos
	Objects storage.ObjectStore

	dbURL       string
	backend     string
	sqlitePath  string
	storageRoot string
	logLevel    string
	logFormat   string

	// newEncoder is swapped out in tests so no ffmpeg is needed.
	newEncoder assemble.EncoderFactory = assemble.FFmpeg
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "redactor",
	Short:   "Blur detected regions in video frames and reassemble the video",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := configureLogging(logLevel, logFormat); err != nil {
			return err
		}

		cfg := resolveStoreConfig()
		var err error
		// Use the command's context (which will be cancellable) for the connection
		Catalogs, err = store.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to open %s catalog store: %w", cfg.Backend, err)
		}
		Objects, err = storage.NewLocalStorage(resolveStorageRoot())
		if err != nil {
			return fmt.Errorf("failed to open object storage: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if Catalogs != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to release the connection.
			Catalogs.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: built from POSTGRES_* or postgres://localhost:5432/redactor)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Catalog store backend: postgres, sqlite, memory (env REDACTOR_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "SQLite database path (env REDACTOR_SQLITE_PATH, default redactor.db)")
	rootCmd.PersistentFlags().StringVar(&storageRoot, "storage", "", "Object storage root directory (env REDACTOR_STORAGE_ROOT, default ./data)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text, json")
}

// resolveStoreConfig fills unset flags from the environment.
func resolveStoreConfig() store.Config {
	cfg := store.Config{
		Backend:     firstNonEmpty(backend, os.Getenv("REDACTOR_BACKEND"), "postgres"),
		PostgresURL: dbURL,
		SQLitePath:  firstNonEmpty(sqlitePath, os.Getenv("REDACTOR_SQLITE_PATH"), "redactor.db"),
	}
	// If no flag was provided, try to build the connection string from the environment
	if cfg.PostgresURL == "" {
		if host := os.Getenv("POSTGRES_HOST"); host != "" {
			user := os.Getenv("POSTGRES_USER")
			pass := os.Getenv("POSTGRES_PASSWORD")
			name := os.Getenv("POSTGRES_DB")
			port := os.Getenv("POSTGRES_PORT")
			if port == "" {
				port = "5432"
			}
			cfg.PostgresURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
		} else {
			// Fallback to local default if no env vars are present
			cfg.PostgresURL = "postgres://localhost:5432/redactor"
		}
	}
	return cfg
}

func resolveStorageRoot() string {
	return firstNonEmpty(storageRoot, os.Getenv("REDACTOR_STORAGE_ROOT"), "./data")
}

func configureLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)

	switch format {
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid --log-format %q (use text or json)", format)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
