package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/provattrs/internal/eav"
	"github.com/alfredjeanlab/provattrs/internal/model"
	"github.com/alfredjeanlab/provattrs/internal/store"
)

// nodeColumns is the column list used for SELECT statements on db_node.
const nodeColumns = `id, uuid, node_type, label, ctime, attributes, extras`

// rowColumns is the column list used for SELECT statements on EAV tables.
const rowColumns = `key, datatype, tval, fval, ival, bval, dval`

// insertChunkSize bounds the rows per INSERT so the statement stays under
// the protocol limit of 65535 parameters.
const insertChunkSize = 1000

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateNode(ctx context.Context, db executor, n *model.Node) error {
	if n.UUID == "" {
		n.UUID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO db_node (uuid, node_type, label, ctime)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		n.UUID, n.NodeType, n.Label, n.CreatedAt,
	).Scan(&n.ID)
}

func queryGetNode(ctx context.Context, db executor, id int64) (*model.Node, error) {
	row := db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM db_node WHERE id = $1`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", id, store.ErrNotFound)
	}
	return n, err
}

func queryDeleteNode(ctx context.Context, db executor, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM db_node WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, fmt.Sprintf("node %d", id))
}

func queryGetNodeDocument(ctx context.Context, db executor, coll store.Collection, id int64) ([]byte, error) {
	if coll.DocumentColumn == "" {
		return nil, fmt.Errorf("collection %s has no document column", coll.Name)
	}
	var doc []byte
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(`+coll.DocumentColumn+`, '{}'::jsonb) FROM db_node WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", id, store.ErrNotFound)
	}
	return doc, err
}

// querySetNodeDocument merges the top-level keys of doc into the node's
// document column, replacing keys that already exist.
func querySetNodeDocument(ctx context.Context, db executor, coll store.Collection, id int64, doc []byte) error {
	if coll.DocumentColumn == "" {
		return fmt.Errorf("collection %s has no document column", coll.Name)
	}
	col := coll.DocumentColumn
	res, err := db.ExecContext(ctx,
		`UPDATE db_node SET `+col+` = COALESCE(`+col+`, '{}'::jsonb) || $2::jsonb WHERE id = $1`,
		id, string(doc),
	)
	if err != nil {
		return err
	}
	return expectAffected(res, fmt.Sprintf("node %d", id))
}

func queryInsertRows(ctx context.Context, db executor, scope store.Scope, rows []model.Row) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	table := scope.Collection.Table

	cols := rowColumns
	if scope.Collection.Scoped() {
		cols = scope.Collection.OwnerColumn + ", " + rowColumns
	}

	for start := 0; start < len(rows); start += insertChunkSize {
		end := min(start+insertChunkSize, len(rows))
		var (
			sb   strings.Builder
			args []any
		)
		sb.WriteString("INSERT INTO " + table + " (" + cols + ") VALUES ")
		for i, r := range rows[start:end] {
			if i > 0 {
				sb.WriteString(", ")
			}
			var vals []any
			if scope.Collection.Scoped() {
				vals = append(vals, scope.NodeID)
			}
			vals = append(vals,
				r.Key,
				string(r.Datatype),
				r.TVal,
				nullFloatPtr(r.FVal),
				nullInt64Ptr(r.IVal),
				nullBoolPtr(r.BVal),
				nullTimePtr(r.DVal),
			)
			sb.WriteString("(")
			for j := range vals {
				if j > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", len(args)+j+1)
			}
			sb.WriteString(")")
			args = append(args, vals...)
		}

		if _, err := db.ExecContext(ctx, sb.String(), args...); err != nil {
			return classifyError(err, table)
		}
	}
	return nil
}

func queryListRows(ctx context.Context, db executor, scope store.Scope, key string) ([]model.Row, error) {
	where, args, err := scopeWhere(scope)
	if err != nil {
		return nil, err
	}
	args = append(args, key, likePrefix(key))
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s AND (key = $%d OR key LIKE $%d) ORDER BY key`,
		rowColumns, scope.Collection.Table, where, len(args)-1, len(args))
	return queryRows(ctx, db, q, args...)
}

func queryListAllRows(ctx context.Context, db executor, scope store.Scope) ([]model.Row, error) {
	where, args, err := scopeWhere(scope)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY key`, rowColumns, scope.Collection.Table, where)
	return queryRows(ctx, db, q, args...)
}

// queryDeleteValue deletes the row stored at key and every row below it.
// With onlyChildren the row at key itself is kept.
func queryDeleteValue(ctx context.Context, db executor, scope store.Scope, key string, onlyChildren bool) error {
	where, args, err := scopeWhere(scope)
	if err != nil {
		return err
	}
	var q string
	if onlyChildren {
		args = append(args, likePrefix(key))
		q = fmt.Sprintf(`DELETE FROM %s WHERE %s AND key LIKE $%d`, scope.Collection.Table, where, len(args))
	} else {
		args = append(args, key, likePrefix(key))
		q = fmt.Sprintf(`DELETE FROM %s WHERE %s AND (key = $%d OR key LIKE $%d)`,
			scope.Collection.Table, where, len(args)-1, len(args))
	}
	_, err = db.ExecContext(ctx, q, args...)
	return err
}

func queryDeleteAllRows(ctx context.Context, db executor, scope store.Scope) error {
	where, args, err := scopeWhere(scope)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM `+scope.Collection.Table+` WHERE `+where, args...)
	return err
}

func queryFindNodes(ctx context.Context, db executor, coll store.Collection, key string, filter eav.Filter) ([]int64, error) {
	if !coll.Scoped() {
		return nil, fmt.Errorf("collection %s is not scoped by node", coll.Name)
	}
	args := []any{key, string(filter.Datatype)}
	q := `SELECT DISTINCT ` + coll.OwnerColumn + ` FROM ` + coll.Table + ` WHERE key = $1 AND datatype = $2`
	if filter.Column != "" {
		args = append(args, filter.Arg)
		q += ` AND ` + filter.Column + ` = $3`
	}
	q += ` ORDER BY ` + coll.OwnerColumn
	return queryIDs(ctx, db, q, args...)
}

// queryListPendingNodes returns ids above afterID of nodes that still own
// rows in the collection.
func queryListPendingNodes(ctx context.Context, db executor, coll store.Collection, afterID int64, limit int) ([]int64, error) {
	if !coll.Scoped() {
		return nil, fmt.Errorf("collection %s is not scoped by node", coll.Name)
	}
	q := fmt.Sprintf(`SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s > $1 ORDER BY %[1]s LIMIT $2`,
		coll.OwnerColumn, coll.Table)
	return queryIDs(ctx, db, q, afterID, limit)
}

func queryCountPendingNodes(ctx context.Context, db executor, coll store.Collection) (int, error) {
	if !coll.Scoped() {
		return 0, fmt.Errorf("collection %s is not scoped by node", coll.Name)
	}
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT `+coll.OwnerColumn+`) FROM `+coll.Table,
	).Scan(&n)
	return n, err
}

func queryRows(ctx context.Context, db executor, q string, args ...any) ([]model.Row, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryIDs(ctx context.Context, db executor, q string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scopeWhere returns the owner condition for scope and its arguments.
func scopeWhere(scope store.Scope) (string, []any, error) {
	if err := scope.Validate(); err != nil {
		return "", nil, err
	}
	if !scope.Collection.Scoped() {
		return "TRUE", nil, nil
	}
	return scope.Collection.OwnerColumn + " = $1", []any{scope.NodeID}, nil
}

// likePrefix returns a LIKE pattern matching every key below key.
func likePrefix(key string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(key) + model.Separator + "%"
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

// classifyError maps unique violations to *model.UniquenessConflictError.
func classifyError(err error, table string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &model.UniquenessConflictError{Table: table, Err: err}
	}
	return err
}
