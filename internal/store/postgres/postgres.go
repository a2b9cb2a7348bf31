// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/provattrs/internal/eav"
	"github.com/alfredjeanlab/provattrs/internal/model"
	"github.com/alfredjeanlab/provattrs/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateNode(ctx context.Context, node *model.Node) error {
	return queryCreateNode(ctx, s.db, node)
}

func (s *PostgresStore) GetNode(ctx context.Context, id int64) (*model.Node, error) {
	return queryGetNode(ctx, s.db, id)
}

func (s *PostgresStore) DeleteNode(ctx context.Context, id int64) error {
	return queryDeleteNode(ctx, s.db, id)
}

func (s *PostgresStore) GetNodeDocument(ctx context.Context, coll store.Collection, id int64) ([]byte, error) {
	return queryGetNodeDocument(ctx, s.db, coll, id)
}

func (s *PostgresStore) SetNodeDocument(ctx context.Context, coll store.Collection, id int64, doc []byte) error {
	return querySetNodeDocument(ctx, s.db, coll, id, doc)
}

func (s *PostgresStore) InsertRows(ctx context.Context, scope store.Scope, rows []model.Row) error {
	return queryInsertRows(ctx, s.db, scope, rows)
}

func (s *PostgresStore) ListRows(ctx context.Context, scope store.Scope, key string) ([]model.Row, error) {
	return queryListRows(ctx, s.db, scope, key)
}

func (s *PostgresStore) ListAllRows(ctx context.Context, scope store.Scope) ([]model.Row, error) {
	return queryListAllRows(ctx, s.db, scope)
}

func (s *PostgresStore) DeleteValue(ctx context.Context, scope store.Scope, key string, onlyChildren bool) error {
	return queryDeleteValue(ctx, s.db, scope, key, onlyChildren)
}

func (s *PostgresStore) DeleteAllRows(ctx context.Context, scope store.Scope) error {
	return queryDeleteAllRows(ctx, s.db, scope)
}

func (s *PostgresStore) FindNodes(ctx context.Context, coll store.Collection, key string, filter eav.Filter) ([]int64, error) {
	return queryFindNodes(ctx, s.db, coll, key, filter)
}

func (s *PostgresStore) ListPendingNodes(ctx context.Context, coll store.Collection, afterID int64, limit int) ([]int64, error) {
	return queryListPendingNodes(ctx, s.db, coll, afterID, limit)
}

func (s *PostgresStore) CountPendingNodes(ctx context.Context, coll store.Collection) (int, error) {
	return queryCountPendingNodes(ctx, s.db, coll)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateNode(ctx context.Context, node *model.Node) error {
	return queryCreateNode(ctx, s.tx, node)
}

func (s *txStore) GetNode(ctx context.Context, id int64) (*model.Node, error) {
	return queryGetNode(ctx, s.tx, id)
}

func (s *txStore) DeleteNode(ctx context.Context, id int64) error {
	return queryDeleteNode(ctx, s.tx, id)
}

func (s *txStore) GetNodeDocument(ctx context.Context, coll store.Collection, id int64) ([]byte, error) {
	return queryGetNodeDocument(ctx, s.tx, coll, id)
}

func (s *txStore) SetNodeDocument(ctx context.Context, coll store.Collection, id int64, doc []byte) error {
	return querySetNodeDocument(ctx, s.tx, coll, id, doc)
}

func (s *txStore) InsertRows(ctx context.Context, scope store.Scope, rows []model.Row) error {
	return queryInsertRows(ctx, s.tx, scope, rows)
}

func (s *txStore) ListRows(ctx context.Context, scope store.Scope, key string) ([]model.Row, error) {
	return queryListRows(ctx, s.tx, scope, key)
}

func (s *txStore) ListAllRows(ctx context.Context, scope store.Scope) ([]model.Row, error) {
	return queryListAllRows(ctx, s.tx, scope)
}

func (s *txStore) DeleteValue(ctx context.Context, scope store.Scope, key string, onlyChildren bool) error {
	return queryDeleteValue(ctx, s.tx, scope, key, onlyChildren)
}

func (s *txStore) DeleteAllRows(ctx context.Context, scope store.Scope) error {
	return queryDeleteAllRows(ctx, s.tx, scope)
}

func (s *txStore) FindNodes(ctx context.Context, coll store.Collection, key string, filter eav.Filter) ([]int64, error) {
	return queryFindNodes(ctx, s.tx, coll, key, filter)
}

func (s *txStore) ListPendingNodes(ctx context.Context, coll store.Collection, afterID int64, limit int) ([]int64, error) {
	return queryListPendingNodes(ctx, s.tx, coll, afterID, limit)
}

func (s *txStore) CountPendingNodes(ctx context.Context, coll store.Collection) (int, error) {
	return queryCountPendingNodes(ctx, s.tx, coll)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
