package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"whiteboard/internal/app"
	"whiteboard/internal/config"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 30 * time.Second

// flagValues holds CLI overrides. Only flags the user set are applied.
type flagValues struct {
	configPath string
	port       int
	host       string
	staticDir  string
	dbPath     string
	noArchive  bool
}

func newRootCmd() *cobra.Command {
	flags := &flagValues{}

	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, flags)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	}

	cmd := &cobra.Command{
		Use:   "whiteboard",
		Short: "Collaborative whiteboard server",
		Long: `whiteboard - A server-authoritative collaborative whiteboard.

Clients join rooms over WebSocket at /ws and share strokes, cursors and a
room-wide undo/redo history. Configuration is layered: defaults, then
WHITEBOARD_* / PORT environment variables, then the --config file, then flags.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve,
	}
	cmd.AddCommand(&cobra.Command{
		Use:          "serve",
		Short:        "Run the whiteboard server (default)",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve,
	})

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("WHITEBOARD_CONFIG_FILE"), "JSON configuration file")
	cmd.PersistentFlags().IntVarP(&flags.port, "port", "p", 0, "HTTP listen port")
	cmd.PersistentFlags().StringVar(&flags.host, "host", "", "HTTP listen host")
	cmd.PersistentFlags().StringVar(&flags.staticDir, "static", "", "directory of client assets served at /")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "sqlite path for room archives")
	cmd.PersistentFlags().BoolVar(&flags.noArchive, "no-archive", false, "do not archive reclaimed rooms")

	return cmd
}

// loadConfig layers explicitly set flags over the file/env/default configuration.
func loadConfig(cmd *cobra.Command, flags *flagValues) (*config.Config, error) {
	cfg, err := config.LoadConfigWithPrecedence(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.HTTP.Port = flags.port
	}
	if changed("host") {
		cfg.HTTP.Host = flags.host
	}
	if changed("static") {
		cfg.HTTP.StaticDir = flags.staticDir
	}
	if changed("db") {
		cfg.Database.Path = flags.dbPath
	}
	if changed("no-archive") {
		cfg.Database.ArchiveEnabled = !flags.noArchive
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// run starts the application and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	log.Printf("Shutdown requested, stopping gracefully")

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
