package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provattrs/internal/attrs"
	"github.com/alfredjeanlab/provattrs/internal/config"
	"github.com/alfredjeanlab/provattrs/internal/events"
	"github.com/alfredjeanlab/provattrs/internal/store/postgres"
	"github.com/alfredjeanlab/provattrs/internal/ui"
)

var (
	databaseURL string
	profileName string
	jsonOutput  bool
	verbose     bool

	logger    *slog.Logger
	cfg       *config.Config
	db        *postgres.PostgresStore
	publisher events.Publisher
	service   *attrs.Service
)

var rootCmd = &cobra.Command{
	Use:           "provattrs",
	Short:         "Inspect and migrate node attributes stored as EAV rows",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(); err != nil {
			return err
		}
		return connect()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if publisher != nil {
			publisher.Close()
		}
		if db != nil {
			db.Close()
		}
	},
}

// setup prepares the environment and loads the configuration.
func setup() error {
	if err := prepare(); err != nil {
		return err
	}
	var err error
	cfg, err = config.Load()
	return err
}

// prepare loads .env files, the active profile and the logger. Commands that
// do not need the database call it from their own PersistentPreRunE.
func prepare() error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}

	if profileName != "" || databaseURL == "" {
		p, err := resolveProfile(profileName)
		if err != nil {
			return err
		}
		p.apply(profileName != "")
	}
	if databaseURL != "" {
		os.Setenv("PROVATTRS_DATABASE_URL", databaseURL)
	}
	return nil
}

func connect() error {
	var err error
	db, err = postgres.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.Namespace)
		if err != nil {
			db.Close()
			return err
		}
		publisher = pub
		logger.Debug("events enabled", "nats_url", cfg.NATSURL)
	} else {
		publisher = &events.NoopPublisher{}
	}

	service = attrs.New(db, publisher, logger, attrs.Options{Location: cfg.Location, Lenient: cfg.Lenient})
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (overrides PROVATTRS_DATABASE_URL and profiles)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "named profile to use (defaults to the active profile)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(unsetCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error:"), err)
		os.Exit(1)
	}
}
