// Package document converts attribute values to and from the JSON document
// stored in a node's attributes and extras columns.
//
// Dates become ISO-8601 strings with microsecond precision. NaN and the
// infinities, which JSON cannot represent, become the strings "NaN",
// "Infinity" and "-Infinity"; on the way back these stay strings, so the
// string "NaN" and the float NaN cannot be told apart once migrated.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/provattrs/internal/model"
)

// NaN is the text stored in place of a float NaN.
const NaN = "NaN"

// DateLayout is the layout of dates inside documents.
const DateLayout = "2006-01-02T15:04:05.000000-07:00"

const naiveDateLayout = "2006-01-02T15:04:05.999999999"

var dateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+([+-]\d{2}:\d{2})?$`)

// Marshal encodes the top-level values as one JSON object with sorted keys.
func Marshal(values map[string]model.Value) ([]byte, error) {
	return MarshalValue(model.Dict(values))
}

// MarshalValue encodes v as JSON.
func MarshalValue(v model.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v model.Value) error {
	v, err := model.Resolve(v)
	if err != nil {
		return err
	}
	switch x := v.(type) {
	case nil, model.Null:
		buf.WriteString("null")
	case model.Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case model.Int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case model.Float:
		writeFloat(buf, float64(x))
	case model.Text:
		return writeString(buf, string(x))
	case model.Date:
		buf.WriteByte('"')
		buf.WriteString(x.Time.Format(DateLayout))
		buf.WriteByte('"')
	case model.List:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case model.Dict:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeValue(buf, x[k]); err != nil {
				return fmt.Errorf("member %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case model.JSONDoc:
		if err := json.Compact(buf, x); err != nil {
			return &model.UnsupportedValueError{Value: x, Err: err}
		}
	}
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) {
	switch {
	case math.IsNaN(f):
		buf.WriteString(`"` + NaN + `"`)
	case math.IsInf(f, 1):
		buf.WriteString(`"Infinity"`)
	case math.IsInf(f, -1):
		buf.WriteString(`"-Infinity"`)
	default:
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	}
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// Unmarshal decodes a document object into its top-level values. Strings
// that look like ISO-8601 dates become dates; a date without an offset is
// naive.
func Unmarshal(data []byte) (map[string]model.Value, error) {
	v, err := parse(data, true)
	if err != nil {
		return nil, err
	}
	d, ok := v.(model.Dict)
	if !ok {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	return d, nil
}

// UnmarshalValue decodes a single document value with the same date
// detection as Unmarshal.
func UnmarshalValue(data []byte) (model.Value, error) {
	return parse(data, true)
}

// ParseValue decodes arbitrary JSON into a Value without date detection.
// Numbers without a fraction or exponent become Int.
func ParseValue(data []byte) (model.Value, error) {
	return parse(data, false)
}

func parse(data []byte, dates bool) (model.Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if dates && dateRE.MatchString(s) {
			return parseDate(s)
		}
		return model.Text(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return model.Bool(b), nil

	case 'n':
		if string(data) != "null" {
			return nil, fmt.Errorf("invalid JSON value %q", data)
		}
		return model.Null{}, nil

	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		out := make(model.List, len(raw))
		for i, elem := range raw {
			v, err := parse(elem, dates)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil

	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		out := make(model.Dict, len(raw))
		for k, member := range raw {
			v, err := parse(member, dates)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = v
		}
		return out, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		if !strings.ContainsAny(n.String(), ".eE") {
			if i, err := n.Int64(); err == nil {
				return model.Int(i), nil
			}
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return model.Float(f), nil
	}
}

func parseDate(s string) (model.Value, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return model.Date{Time: t}, nil
	}
	t, err := time.Parse(naiveDateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s, err)
	}
	return model.Date{Time: t, Naive: true}, nil
}
