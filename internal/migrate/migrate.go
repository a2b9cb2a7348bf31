// Package migrate moves EAV rows into the JSONB document column of their
// node. Each node is migrated in its own transaction: the rows are decoded,
// written as a document and deleted. A node whose rows cannot be decoded
// keeps its rows and is reported, so a later run only sees what is left.
package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/provattrs/internal/backup"
	"github.com/alfredjeanlab/provattrs/internal/document"
	"github.com/alfredjeanlab/provattrs/internal/eav"
	"github.com/alfredjeanlab/provattrs/internal/events"
	"github.com/alfredjeanlab/provattrs/internal/idgen"
	"github.com/alfredjeanlab/provattrs/internal/model"
	"github.com/alfredjeanlab/provattrs/internal/store"
)

// DefaultBatchSize is the number of nodes fetched per batch when
// Options.BatchSize is zero.
const DefaultBatchSize = 1000

// Options configures a migration run.
type Options struct {
	// Collections to migrate, in order. Empty means attributes then extras.
	Collections []store.Collection
	BatchSize   int
	// Workers is the number of nodes of a batch migrated concurrently.
	Workers int
	// Lenient migrates nodes with surplus list entries or dict length
	// mismatches instead of failing them.
	Lenient bool
	// StopOnError aborts the run after the first failed node.
	StopOnError bool
	// RunID names the run in logs, events and backups. Generated when empty.
	RunID string
	// Location converts decoded dates before they are written.
	Location *time.Location
	// OnBatch is called after every batch.
	OnBatch func(events.MigrationBatch)
}

// Failure is a node that could not be migrated.
type Failure struct {
	Collection string
	NodeID     int64
	Key        string // offending key, when known
	Err        error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s node %d: %v", f.Collection, f.NodeID, f.Err)
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Migrated int
	Failed   int
	Warnings int
	Failures []Failure
	Duration time.Duration
	Aborted  bool
}

// Migrator runs migrations over a store.
type Migrator struct {
	store     store.Store
	publisher events.Publisher
	backup    backup.Destination
	logger    *slog.Logger
	opts      Options
}

// New returns a Migrator. dest may be nil to skip backups; a nil publisher
// disables events.
func New(s store.Store, p events.Publisher, dest backup.Destination, logger *slog.Logger, opts Options) *Migrator {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Collections) == 0 {
		opts.Collections = []store.Collection{store.Attributes, store.Extras}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Migrator{store: s, publisher: p, backup: dest, logger: logger, opts: opts}
}

// Run migrates every pending node. Node failures are collected in the
// report; the returned error is reserved for conditions that stop the run
// (storage errors outside a node, backup failures, cancellation). The
// report is returned in every case.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := m.opts.RunID
	if runID == "" {
		id, err := idgen.RunID()
		if err != nil {
			return nil, err
		}
		runID = id
	}
	r := &run{Migrator: m, runID: runID, report: &Report{RunID: runID}}

	m.logger.Info("migration started", "run_id", runID, "batch_size", m.opts.BatchSize, "workers", m.opts.Workers, "lenient", m.opts.Lenient)

	var err error
	for _, coll := range m.opts.Collections {
		if err = r.collection(ctx, coll); err != nil || r.stop.Load() {
			break
		}
	}

	rep := r.report
	rep.Duration = time.Since(start)
	rep.Aborted = err != nil || r.stop.Load()
	m.publish(ctx, events.TopicMigrationDone, events.MigrationDone{
		RunID:    runID,
		Migrated: rep.Migrated,
		Failed:   rep.Failed,
		Warnings: rep.Warnings,
		Duration: rep.Duration,
		Aborted:  rep.Aborted,
	})
	m.logger.Info("migration finished", "run_id", runID, "migrated", rep.Migrated, "failed", rep.Failed,
		"warnings", rep.Warnings, "duration", rep.Duration, "aborted", rep.Aborted)
	return rep, err
}

// run holds the state of one Run.
type run struct {
	*Migrator
	runID string

	mu     sync.Mutex
	report *Report
	stop   atomic.Bool
}

func (r *run) collection(ctx context.Context, coll store.Collection) error {
	if !coll.Scoped() || coll.DocumentColumn == "" {
		return fmt.Errorf("collection %s has no document column to migrate into", coll.Name)
	}
	remaining, err := r.store.CountPendingNodes(ctx, coll)
	if err != nil {
		return fmt.Errorf("counting pending %s: %w", coll.Name, err)
	}
	r.logger.Info("migrating collection", "run_id", r.runID, "collection", coll.Name, "pending", remaining)

	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := r.store.ListPendingNodes(ctx, coll, cursor, r.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("listing pending %s: %w", coll.Name, err)
		}
		if len(ids) == 0 {
			return nil
		}
		cursor = ids[len(ids)-1]

		if r.backup != nil {
			if err := r.snapshot(ctx, coll, ids); err != nil {
				return err
			}
		}

		migrated, failed, err := r.batch(ctx, coll, ids)
		remaining -= migrated + failed
		batch := events.MigrationBatch{
			RunID:      r.runID,
			Collection: coll.Name,
			FirstNode:  ids[0],
			LastNode:   cursor,
			Migrated:   migrated,
			Failed:     failed,
			Remaining:  max(remaining, 0),
		}
		r.logger.Info("migration batch", "run_id", r.runID, "collection", coll.Name,
			"first_node", batch.FirstNode, "last_node", batch.LastNode,
			"migrated", migrated, "failed", failed, "remaining", batch.Remaining)
		r.publish(ctx, events.TopicMigrationBatch, batch)
		if r.opts.OnBatch != nil {
			r.opts.OnBatch(batch)
		}
		if err != nil || r.stop.Load() {
			return err
		}
	}
}

// snapshot writes the current rows of ids to the backup destination.
func (r *run) snapshot(ctx context.Context, coll store.Collection, ids []int64) error {
	rows := make(map[int64][]model.Row, len(ids))
	for _, id := range ids {
		rs, err := r.store.ListAllRows(ctx, store.Scope{Collection: coll, NodeID: id})
		if err != nil {
			return fmt.Errorf("reading rows of node %d for backup: %w", id, err)
		}
		rows[id] = rs
	}
	var buf bytes.Buffer
	if err := backup.ExportRowsJSONL(&buf, coll.Name, r.runID, rows); err != nil {
		return fmt.Errorf("exporting backup: %w", err)
	}
	name := backup.SnapshotName(r.runID, coll.Name, ids[0], ids[len(ids)-1])
	if err := r.backup.Write(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("writing backup %s: %w", name, err)
	}
	return nil
}

// batch migrates ids with up to opts.Workers goroutines. Cancellation and
// StopOnError are checked before each node; a node that has started runs
// to completion.
func (r *run) batch(ctx context.Context, coll store.Collection, ids []int64) (migrated, failed int, err error) {
	next := make(chan int64)
	var wg sync.WaitGroup
	var counted sync.Mutex

	for w := 0; w < min(r.opts.Workers, len(ids)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range next {
				warnings, nodeErr := r.node(ctx, coll, id)
				counted.Lock()
				if nodeErr != nil {
					failed++
				} else {
					migrated++
				}
				counted.Unlock()
				r.record(ctx, coll, id, warnings, nodeErr)
			}
		}()
	}

	for _, id := range ids {
		if err = ctx.Err(); err != nil || r.stop.Load() {
			break
		}
		next <- id
	}
	close(next)
	wg.Wait()
	return migrated, failed, err
}

// node migrates one node in a transaction that is not interrupted by
// cancellation of ctx.
func (r *run) node(ctx context.Context, coll store.Collection, id int64) (int, error) {
	ctx = context.WithoutCancel(ctx)
	scope := store.Scope{Collection: coll, NodeID: id}
	var warnings int
	err := r.store.RunInTransaction(ctx, func(tx store.Store) error {
		rows, err := tx.ListAllRows(ctx, scope)
		if err != nil {
			return err
		}
		res, err := eav.Decode(rows, eav.Options{
			Lenient:   r.opts.Lenient,
			NaNAsText: true,
			Location:  r.opts.Location,
			Source:    coll.Table,
			Owner:     scope.Owner(),
		})
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			r.logger.Warn("inconsistent stored value", "run_id", r.runID, "collection", coll.Name,
				"node_id", id, "key", w.Key, "warning", w.Message)
		}
		warnings = len(res.Warnings)

		doc, err := document.Marshal(res.Values)
		if err != nil {
			return err
		}
		if err := tx.SetNodeDocument(ctx, coll, id, doc); err != nil {
			return err
		}
		return tx.DeleteAllRows(ctx, scope)
	})
	return warnings, err
}

func (r *run) record(ctx context.Context, coll store.Collection, id int64, warnings int, err error) {
	r.mu.Lock()
	r.report.Warnings += warnings
	if err == nil {
		r.report.Migrated++
		r.mu.Unlock()
		return
	}
	f := Failure{Collection: coll.Name, NodeID: id, Err: err}
	var de *model.DeserializationError
	if errors.As(err, &de) {
		f.Key = de.Key
	}
	r.report.Failed++
	r.report.Failures = append(r.report.Failures, f)
	r.mu.Unlock()

	if r.opts.StopOnError {
		r.stop.Store(true)
	}
	r.logger.Error("node migration failed", "run_id", r.runID, "collection", coll.Name, "node_id", id, "key", f.Key, "err", err)
	r.publish(ctx, events.TopicMigrationFailed, events.MigrationFailed{
		RunID:      r.runID,
		Collection: coll.Name,
		NodeID:     id,
		Key:        f.Key,
		Error:      err.Error(),
	})
}

func (m *Migrator) publish(ctx context.Context, topic string, event any) {
	if err := m.publisher.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		m.logger.Warn("failed to publish event", "topic", topic, "err", err)
	}
}
