package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provattrs/internal/backup"
	"github.com/alfredjeanlab/provattrs/internal/events"
	"github.com/alfredjeanlab/provattrs/internal/migrate"
	"github.com/alfredjeanlab/provattrs/internal/store"
	"github.com/alfredjeanlab/provattrs/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move EAV rows into the node document columns",
	Long: `Decodes the EAV rows of every node and writes them into the node's JSONB
document column, one transaction per node. Nodes whose rows are inconsistent
keep their rows and are reported; rerunning only processes what is left.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := migrateOptions(cmd)
		if err != nil {
			return err
		}
		dest, err := backupDestination(cmd.Context(), cmd)
		if err != nil {
			return err
		}

		progress := ui.NewProgress(os.Stderr)
		opts.OnBatch = func(b events.MigrationBatch) {
			progress.Update(fmt.Sprintf("%s: nodes %d-%d, %d migrated, %d failed, %d remaining",
				b.Collection, b.FirstNode, b.LastNode, b.Migrated, b.Failed, b.Remaining))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var d backup.Destination
		if dest != nil {
			d = dest
		}
		rep, err := migrate.New(db, publisher, d, logger, opts).Run(ctx)
		progress.Done()
		if rep != nil {
			if perr := printReport(cmd, rep); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
		if rep.Failed > 0 {
			return fmt.Errorf("%d nodes could not be migrated", rep.Failed)
		}
		return nil
	},
}

func migrateOptions(cmd *cobra.Command) (migrate.Options, error) {
	opts := migrate.Options{
		BatchSize: cfg.MigrateBatchSize,
		Workers:   cfg.MigrateWorkers,
		Lenient:   cfg.Lenient,
		Location:  cfg.Location,
	}
	if cmd.Flags().Changed("batch-size") {
		opts.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("workers") {
		opts.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("lenient") {
		opts.Lenient, _ = cmd.Flags().GetBool("lenient")
	}
	opts.StopOnError, _ = cmd.Flags().GetBool("stop-on-error")
	opts.RunID, _ = cmd.Flags().GetString("run-id")

	names, _ := cmd.Flags().GetStringSlice("collection")
	for _, name := range names {
		coll, err := store.CollectionByName(name)
		if err != nil {
			return opts, err
		}
		opts.Collections = append(opts.Collections, coll)
	}
	return opts, nil
}

// backupDestination builds the configured backup targets. It returns nil
// when backups are disabled.
func backupDestination(ctx context.Context, cmd *cobra.Command) (*backup.Multi, error) {
	if skip, _ := cmd.Flags().GetBool("no-backup"); skip {
		logger.Warn("backups disabled; migrated rows cannot be restored")
		return nil, nil
	}
	dir := cfg.BackupDir
	if cmd.Flags().Changed("backup-dir") {
		dir, _ = cmd.Flags().GetString("backup-dir")
	}

	var dests []backup.Destination
	if dir != "" {
		dests = append(dests, backup.NewDirDestination(dir))
		logger.Info("backup directory enabled", "dir", dir)
	}
	if cfg.BackupS3Bucket != "" {
		s3Dest, err := backup.NewS3Destination(ctx, cfg.BackupS3Bucket, cfg.BackupS3Prefix, cfg.BackupS3Region, cfg.BackupS3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("creating S3 backup destination: %w", err)
		}
		dests = append(dests, s3Dest)
		logger.Info("backup S3 destination enabled", "bucket", cfg.BackupS3Bucket, "prefix", cfg.BackupS3Prefix)
	}
	if len(dests) == 0 {
		return nil, nil
	}
	return backup.NewMulti(logger, dests...), nil
}

type failureJSON struct {
	Collection string `json:"collection"`
	NodeID     int64  `json:"node_id"`
	Key        string `json:"key,omitempty"`
	Error      string `json:"error"`
}

type reportJSON struct {
	RunID    string        `json:"run_id"`
	Migrated int           `json:"migrated"`
	Failed   int           `json:"failed"`
	Warnings int           `json:"warnings"`
	Aborted  bool          `json:"aborted"`
	Duration string        `json:"duration"`
	Failures []failureJSON `json:"failures,omitempty"`
}

func printReport(cmd *cobra.Command, rep *migrate.Report) error {
	w := cmd.OutOrStdout()
	if jsonOutput {
		out := reportJSON{
			RunID:    rep.RunID,
			Migrated: rep.Migrated,
			Failed:   rep.Failed,
			Warnings: rep.Warnings,
			Aborted:  rep.Aborted,
			Duration: rep.Duration.Round(time.Millisecond).String(),
		}
		for _, f := range rep.Failures {
			out.Failures = append(out.Failures, failureJSON{Collection: f.Collection, NodeID: f.NodeID, Key: f.Key, Error: f.Err.Error()})
		}
		return printJSON(w, out)
	}

	status := ui.RenderOK("done")
	if rep.Aborted {
		status = ui.RenderError("aborted")
	}
	fmt.Fprintf(w, "%s %s: %d migrated, %d failed, %d warnings in %s\n",
		status, rep.RunID, rep.Migrated, rep.Failed, rep.Warnings, rep.Duration.Round(time.Millisecond))
	for _, f := range rep.Failures {
		fmt.Fprintf(w, "  %s %s node %d %s\n", ui.RenderError("x"), f.Collection, f.NodeID, f.Err)
	}
	return nil
}

func init() {
	migrateCmd.Flags().Int("batch-size", migrate.DefaultBatchSize, "nodes per batch")
	migrateCmd.Flags().Int("workers", 1, "nodes migrated concurrently")
	migrateCmd.Flags().Bool("lenient", false, "migrate surplus list entries and dict length mismatches with a warning")
	migrateCmd.Flags().Bool("stop-on-error", false, "abort after the first failed node")
	migrateCmd.Flags().String("run-id", "", "run identifier (generated when empty)")
	migrateCmd.Flags().StringSlice("collection", nil, "collections to migrate (default attributes,extras)")
	migrateCmd.Flags().String("backup-dir", "", "write row snapshots to this directory")
	migrateCmd.Flags().Bool("no-backup", false, "skip row snapshots")
}
