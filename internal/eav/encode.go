package eav

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alfredjeanlab/provattrs/internal/model"
)

// Encoder flattens values into rows. Naive dates are interpreted in Location.
type Encoder struct {
	Location *time.Location
}

// NewEncoder returns an Encoder for loc. A nil loc means UTC.
func NewEncoder(loc *time.Location) *Encoder {
	if loc == nil {
		loc = time.UTC
	}
	return &Encoder{Location: loc}
}

// Encode returns the rows representing v under the top-level key. The main
// row comes first and every container row precedes its children; list
// children follow index order and dict members follow sorted key order.
func (e *Encoder) Encode(key string, v model.Value) ([]model.Row, error) {
	if err := model.ValidateKey(key); err != nil {
		return nil, err
	}
	var rows []model.Row
	if err := e.encode(key, v, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// EncodeNative converts v with model.FromNative and encodes the result.
func (e *Encoder) EncodeNative(key string, v any) ([]model.Row, error) {
	value, err := model.FromNative(v)
	if err != nil {
		return nil, err
	}
	return e.Encode(key, value)
}

func (e *Encoder) encode(key string, v model.Value, rows *[]model.Row) error {
	v, err := model.Resolve(v)
	if err != nil {
		return err
	}
	row := model.Row{Key: key, Datatype: Classify(v)}

	switch x := v.(type) {
	case model.Bool:
		b := bool(x)
		row.BVal = &b
	case model.Int:
		i := int64(x)
		row.IVal = &i
	case model.Float:
		f := float64(x)
		row.FVal = &f
	case model.Text:
		row.TVal = string(x)
	case model.Date:
		t := e.normalize(x)
		row.DVal = &t
	case model.JSONDoc:
		var buf bytes.Buffer
		if err := json.Compact(&buf, x); err != nil {
			return &model.UnsupportedValueError{Value: x, Err: err}
		}
		row.TVal = buf.String()
	case model.List:
		n := int64(len(x))
		row.IVal = &n
		*rows = append(*rows, row)
		for i, elem := range x {
			if err := e.encode(model.IndexKey(key, i), elem, rows); err != nil {
				return err
			}
		}
		return nil
	case model.Dict:
		n := int64(len(x))
		row.IVal = &n
		*rows = append(*rows, row)
		names := make([]string, 0, len(x))
		for name := range x {
			if err := model.ValidateKey(name); err != nil {
				return err
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := e.encode(model.JoinKey(key, name), x[name], rows); err != nil {
				return err
			}
		}
		return nil
	}

	*rows = append(*rows, row)
	return nil
}

// normalize makes d timezone-aware, reading naive wall-clock fields in the
// encoder's location.
func (e *Encoder) normalize(d model.Date) time.Time {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	if !d.Naive {
		return d.Time
	}
	t := d.Time
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// Filter describes how to match a scalar value against stored rows: rows of
// Datatype whose Column equals Arg. Column is empty for none.
type Filter struct {
	Datatype model.Datatype
	Column   string
	Arg      any
}

// QueryFilter returns the row filter matching v. Containers and JSON
// documents have no single-row representation and are rejected.
func (e *Encoder) QueryFilter(v model.Value) (Filter, error) {
	v, err := model.Resolve(v)
	if err != nil {
		return Filter{}, err
	}
	f := Filter{Datatype: Classify(v)}
	f.Column = f.Datatype.Column()
	switch x := v.(type) {
	case nil, model.Null:
		f.Column = ""
	case model.Bool:
		f.Arg = bool(x)
	case model.Int:
		f.Arg = int64(x)
	case model.Float:
		f.Arg = float64(x)
	case model.Text:
		f.Arg = string(x)
	case model.Date:
		f.Arg = e.normalize(x)
	default:
		return Filter{}, &model.UnsupportedValueError{
			Value: v,
			Err:   fmt.Errorf("cannot filter on values of datatype %s", f.Datatype),
		}
	}
	return f, nil
}
