package eav

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/provattrs/internal/document"
	"github.com/alfredjeanlab/provattrs/internal/model"
)

// ErrKeyNotFound is returned by DecodeSubtree when no row is stored for the key.
var ErrKeyNotFound = errors.New("eav: key not found")

// Options controls decoding.
type Options struct {
	// Lenient downgrades surplus list entries and dict length mismatches to
	// warnings.
	Lenient bool
	// NaNAsText returns float NaN as the text "NaN", the convention used by
	// the document form.
	NaNAsText bool
	// Location, when set, converts decoded dates into this zone.
	Location *time.Location
	// Source and Owner are copied into every DeserializationError.
	Source string
	Owner  string
}

// Warning is a structural inconsistency tolerated in lenient mode.
type Warning struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// Result holds the decoded top-level values and any lenient-mode warnings.
type Result struct {
	Values   map[string]model.Value
	Warnings []Warning
}

// Decode rebuilds every top-level value from rows, which must hold all rows
// of one owner. Keys in the result are the top-level keys.
func Decode(rows []model.Row, opts Options) (*Result, error) {
	d := &decoder{opts: opts}
	mains, subs, err := d.partition("", rows)
	if err != nil {
		return nil, err
	}
	if err := d.checkOrphans("", mains, subs); err != nil {
		return nil, err
	}

	res := &Result{Values: make(map[string]model.Value, len(mains))}
	for _, key := range sortedKeys(mains) {
		v, err := d.reconstruct(key, mains[key], subs[key])
		if err != nil {
			return nil, err
		}
		res.Values[key] = v
	}
	res.Warnings = d.warnings
	return res, nil
}

// DecodeSubtree rebuilds the value stored at key, which may be nested (for
// example "attr.sublist"). Rows that are neither key nor below it are ignored.
func DecodeSubtree(key string, rows []model.Row, opts Options) (model.Value, []Warning, error) {
	d := &decoder{opts: opts}
	var (
		main  *model.Row
		below []model.Row
	)
	for i := range rows {
		r := rows[i]
		switch {
		case r.Key == key:
			if main != nil {
				return nil, nil, d.errorf(key, "duplicate key")
			}
			main = &rows[i]
		case model.HasPrefixKey(r.Key, key):
			r.Key = strings.TrimPrefix(r.Key, key+model.Separator)
			below = append(below, r)
		}
	}
	if main == nil {
		if len(below) == 0 {
			return nil, nil, ErrKeyNotFound
		}
		return nil, nil, d.errorf(key, "missing base keys for the following items: %s", key)
	}
	v, err := d.reconstruct(key, *main, below)
	if err != nil {
		return nil, nil, err
	}
	return v, d.warnings, nil
}

type decoder struct {
	opts     Options
	warnings []Warning
}

func (d *decoder) errorf(key, format string, args ...any) error {
	return &model.DeserializationError{
		Source: d.opts.Source,
		Owner:  d.opts.Owner,
		Key:    key,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func (d *decoder) warnf(key, format string, args ...any) {
	d.warnings = append(d.warnings, Warning{Key: key, Message: fmt.Sprintf(format, args...)})
}

// partition splits rows, keyed relative to parent, on their first separator.
// Rows without one are main items; the rest are grouped under their owning
// segment with the owner prefix stripped.
func (d *decoder) partition(parent string, rows []model.Row) (map[string]model.Row, map[string][]model.Row, error) {
	mains := make(map[string]model.Row)
	subs := make(map[string][]model.Row)
	for _, r := range rows {
		head, rest, ok := model.SplitKey(r.Key)
		if !ok {
			if _, dup := mains[r.Key]; dup {
				return nil, nil, d.errorf(model.JoinKey(parent, r.Key), "duplicate key")
			}
			mains[r.Key] = r
			continue
		}
		r.Key = rest
		subs[head] = append(subs[head], r)
	}
	return mains, subs, nil
}

func (d *decoder) checkOrphans(parent string, mains map[string]model.Row, subs map[string][]model.Row) error {
	var lone []string
	for owner := range subs {
		if _, ok := mains[owner]; !ok {
			lone = append(lone, model.JoinKey(parent, owner))
		}
	}
	if len(lone) == 0 {
		return nil
	}
	sort.Strings(lone)
	return d.errorf(parent, "missing base keys for the following items: %s", strings.Join(lone, ","))
}

func (d *decoder) reconstruct(key string, main model.Row, sub []model.Row) (model.Value, error) {
	if main.Datatype.IsValid() && !main.Datatype.IsContainer() && len(sub) > 0 {
		return nil, d.errorf(key, "datatype %s is a base type, but has subitems", main.Datatype)
	}
	if !main.HasValue() {
		return nil, d.errorf(key, "no value stored in column %s for datatype %s", main.Datatype.Column(), main.Datatype)
	}

	switch main.Datatype {
	case model.TypeNone:
		return model.Null{}, nil
	case model.TypeBool:
		return model.Bool(*main.BVal), nil
	case model.TypeInt:
		return model.Int(*main.IVal), nil
	case model.TypeFloat:
		if math.IsNaN(*main.FVal) && d.opts.NaNAsText {
			return model.Text(document.NaN), nil
		}
		return model.Float(*main.FVal), nil
	case model.TypeText:
		return model.Text(main.TVal), nil
	case model.TypeDate:
		t := *main.DVal
		if d.opts.Location != nil {
			t = t.In(d.opts.Location)
		}
		return model.Date{Time: t}, nil
	case model.TypeJSON:
		v, err := document.ParseValue([]byte(main.TVal))
		if err != nil {
			return nil, d.errorf(key, "malformed JSON document: %v", err)
		}
		return v, nil
	case model.TypeList:
		return d.reconstructList(key, *main.IVal, sub)
	case model.TypeDict:
		return d.reconstructDict(key, *main.IVal, sub)
	}
	return nil, d.errorf(key, "unknown datatype %q", string(main.Datatype))
}

// maxReportedIndices bounds how many missing list indices an error names.
const maxReportedIndices = 10

// reconstructList requires the stored indices to include 0..n-1. Surplus
// entries are an error unless the decoder is lenient, in which case they are
// dropped. Sub-items with no element row are always an error, even though
// older readers skipped them silently.
func (d *decoder) reconstructList(key string, n int64, sub []model.Row) (model.Value, error) {
	if n < 0 {
		return nil, d.errorf(key, "negative length %d stored for a list", n)
	}
	mains, subs, err := d.partition(key, sub)
	if err != nil {
		return nil, err
	}
	if err := d.checkOrphans(key, mains, subs); err != nil {
		return nil, err
	}

	var present int64
	for name := range mains {
		if i, ok := listIndex(name); ok && i < n {
			present++
		}
	}
	if present < n {
		// At most len(mains) indices below the bound are present, so this
		// walk ends after len(mains)+maxReportedIndices steps.
		var missing []string
		for i := int64(0); i < n && len(missing) < maxReportedIndices; i++ {
			if _, ok := mains[strconv.FormatInt(i, 10)]; !ok {
				missing = append(missing, strconv.FormatInt(i, 10))
			}
		}
		list := strings.Join(missing, ",")
		if absent := n - present; absent > int64(len(missing)) {
			list += fmt.Sprintf(",... (%d missing)", absent)
		}
		return nil, d.errorf(key, "wrong list elements: missing indices %s (%d declared, %d stored)",
			list, n, len(mains))
	}
	if int64(len(mains)) != n {
		var surplus []string
		for name := range mains {
			if i, ok := listIndex(name); !ok || i >= n {
				surplus = append(surplus, name)
			}
		}
		sort.Strings(surplus)
		msg := fmt.Sprintf("wrong list elements: unexpected entries %s (%d declared, %d stored)",
			strings.Join(surplus, ","), n, len(mains))
		if !d.opts.Lenient {
			return nil, d.errorf(key, "%s", msg)
		}
		d.warnf(key, "%s", msg)
	}

	out := make(model.List, n)
	for i := range out {
		name := strconv.Itoa(i)
		v, err := d.reconstruct(model.JoinKey(key, name), mains[name], subs[name])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// reconstructDict requires exactly n members. This is stricter than the
// list check, which only requires the declared indices to be present. In
// lenient mode a mismatch is a warning and every stored member is kept.
// As with lists, sub-items with no member row are always an error rather
// than being skipped the way older readers did.
func (d *decoder) reconstructDict(key string, n int64, sub []model.Row) (model.Value, error) {
	if n < 0 {
		return nil, d.errorf(key, "negative length %d stored for a dict", n)
	}
	mains, subs, err := d.partition(key, sub)
	if err != nil {
		return nil, err
	}
	if err := d.checkOrphans(key, mains, subs); err != nil {
		return nil, err
	}

	if int64(len(mains)) != n {
		msg := fmt.Sprintf("wrong dict length (%d declared, %d stored)", n, len(mains))
		if !d.opts.Lenient {
			return nil, d.errorf(key, "%s", msg)
		}
		d.warnf(key, "%s", msg)
	}

	out := make(model.Dict, len(mains))
	for _, name := range sortedKeys(mains) {
		v, err := d.reconstruct(model.JoinKey(key, name), mains[name], subs[name])
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// listIndex parses a canonical non-negative list index such as "0" or "12".
func listIndex(name string) (int64, bool) {
	i, err := strconv.ParseInt(name, 10, 64)
	if err != nil || i < 0 || strconv.FormatInt(i, 10) != name {
		return 0, false
	}
	return i, true
}

func sortedKeys(m map[string]model.Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
