package model

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// FromNative converts an ordinary Go value into a Value. Maps must have
// string keys. Values with no natural mapping are marshalled into a JSONDoc;
// anything encoding/json rejects is an *UnsupportedValueError.
func FromNative(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return Resolve(x)
	case bool:
		return Bool(x), nil
	case int:
		return Int(x), nil
	case int8:
		return Int(x), nil
	case int16:
		return Int(x), nil
	case int32:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(x), nil
	case uint16:
		return Int(x), nil
	case uint32:
		return Int(x), nil
	case uint:
		return uintValue(uint64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return Float(x), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, &UnsupportedValueError{Value: v, Err: err}
		}
		return Float(f), nil
	case string:
		return Text(x), nil
	case time.Time:
		return Date{Time: x}, nil
	case json.RawMessage:
		if !json.Valid(x) {
			return nil, &UnsupportedValueError{Value: v, Err: fmt.Errorf("invalid JSON document")}
		}
		return JSONDoc(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return FromNative(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return List{}, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		out := make(List, rv.Len())
		for i := range out {
			elem, err := FromNative(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &InvalidKeyError{Key: fmt.Sprint(rv.Type().Key()), Reason: "the key must be a string"}
		}
		out := make(Dict, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			member, err := FromNative(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = member
		}
		return out, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, &UnsupportedValueError{Value: v, Err: err}
	}
	return JSONDoc(data), nil
}

// Resolve returns the variant v holds. Pointers to variants are followed and
// a nil pointer is Null. Any other implementation of Value is an
// *UnsupportedValueError.
func Resolve(v Value) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Null, Bool, Int, Float, Text, Date, List, Dict, JSONDoc:
		return x, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null{}, nil
		}
		if elem, ok := rv.Elem().Interface().(Value); ok {
			return Resolve(elem)
		}
	}
	return nil, &UnsupportedValueError{Value: v, Err: fmt.Errorf("not a value variant")}
}

func uintValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, &UnsupportedValueError{Value: u, Err: fmt.Errorf("integer overflows int64")}
	}
	return Int(int64(u)), nil
}

// ToNative converts a Value back to plain Go types: nil, bool, int64,
// float64, string, time.Time, []any, map[string]any or json.RawMessage.
func ToNative(v Value) any {
	switch x := v.(type) {
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case Text:
		return string(x)
	case Date:
		return x.Time
	case List:
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = ToNative(elem)
		}
		return out
	case Dict:
		out := make(map[string]any, len(x))
		for k, member := range x {
			out[k] = ToNative(member)
		}
		return out
	case JSONDoc:
		return json.RawMessage(x)
	}
	return nil
}
