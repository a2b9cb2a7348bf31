package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/provattrs/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanRow scans a single EAV row in the order defined by rowColumns.
func scanRow(row scannable) (model.Row, error) {
	var (
		r        model.Row
		datatype string
		fval     sql.NullFloat64
		ival     sql.NullInt64
		bval     sql.NullBool
		dval     sql.NullTime
	)
	if err := row.Scan(&r.Key, &datatype, &r.TVal, &fval, &ival, &bval, &dval); err != nil {
		return model.Row{}, err
	}
	r.Datatype = model.Datatype(datatype)
	if fval.Valid {
		r.FVal = &fval.Float64
	}
	if ival.Valid {
		r.IVal = &ival.Int64
	}
	if bval.Valid {
		r.BVal = &bval.Bool
	}
	if dval.Valid {
		t := dval.Time
		r.DVal = &t
	}
	return r, nil
}

// scanNode scans a node in the order defined by nodeColumns.
func scanNode(row scannable) (*model.Node, error) {
	var (
		n          model.Node
		attributes []byte
		extras     []byte
	)
	if err := row.Scan(&n.ID, &n.UUID, &n.NodeType, &n.Label, &n.CreatedAt, &attributes, &extras); err != nil {
		return nil, err
	}
	if len(attributes) > 0 {
		n.Attributes = json.RawMessage(attributes)
	}
	if len(extras) > 0 {
		n.Extras = json.RawMessage(extras)
	}
	return &n, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullFloatPtr converts a *float64 to a sql.NullFloat64.
func nullFloatPtr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullInt64Ptr converts a *int64 to a sql.NullInt64.
func nullInt64Ptr(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// nullBoolPtr converts a *bool to a sql.NullBool.
func nullBoolPtr(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
