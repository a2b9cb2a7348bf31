package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestFromNative(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var nilPtr *int
	seven := 7
	one := Int(1)
	var nilDict *Dict
	for _, tc := range []struct {
		name string
		in   any
		want Value
	}{
		{"Nil", nil, Null{}},
		{"NilPointer", nilPtr, Null{}},
		{"Pointer", &seven, Int(7)},
		{"Bool", true, Bool(true)},
		{"Int", 12, Int(12)},
		{"Uint8", uint8(200), Int(200)},
		{"Float", 26.2, Float(26.2)},
		{"FloatNaN", math.NaN(), Float(math.NaN())},
		{"String", "a string", Text("a string")},
		{"Time", now, Date{Time: now}},
		{"NumberInt", json.Number("5"), Int(5)},
		{"NumberFloat", json.Number("5.5"), Float(5.5)},
		{"Slice", []any{1, true, "ggg"}, List{Int(1), Bool(true), Text("ggg")}},
		{"TypedSlice", []int{9, 8, 7}, List{Int(9), Int(8), Int(7)}},
		{"NilSlice", []string(nil), List{}},
		{"Map", map[string]any{"h": "j"}, Dict{"h": Text("j")}},
		{"Nested", map[string]any{"sub": []any{map[string]any{}}}, Dict{"sub": List{Dict{}}}},
		{"Value", Text("x"), Text("x")},
		{"ValuePointer", &one, Int(1)},
		{"NilValuePointer", nilDict, Null{}},
		{"MapOfValuePointers", map[string]any{"p": &one}, Dict{"p": Int(1)}},
		{"RawMessage", json.RawMessage(`{"a":1}`), JSONDoc(`{"a":1}`)},
		{"Struct", struct {
			A int `json:"a"`
		}{A: 1}, JSONDoc(`{"a":1}`)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromNative(tc.in)
			if err != nil {
				t.Fatalf("FromNative(%v) error: %v", tc.in, err)
			}
			if !Equal(got, tc.want) {
				t.Errorf("FromNative(%v) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}

func TestFromNative_Errors(t *testing.T) {
	if _, err := FromNative(map[int]any{1: "a"}); err == nil {
		t.Fatal("expected error for non-string map key")
	} else {
		var ike *InvalidKeyError
		if !errors.As(err, &ike) {
			t.Errorf("error type = %T, want *InvalidKeyError", err)
		}
	}

	for _, in := range []any{make(chan int), func() {}, uint64(math.MaxUint64), []any{make(chan int)}} {
		_, err := FromNative(in)
		var uve *UnsupportedValueError
		if !errors.As(err, &uve) {
			t.Errorf("FromNative(%T) error = %v, want *UnsupportedValueError", in, err)
		}
	}
}

// wrappedText implements Value by embedding a variant.
type wrappedText struct{ Text }

func TestResolve(t *testing.T) {
	list := List{Int(2)}
	for _, tc := range []struct {
		name string
		in   Value
		want Value
	}{
		{"Nil", nil, Null{}},
		{"Variant", Float(1.5), Float(1.5)},
		{"Pointer", &list, List{Int(2)}},
		{"NilPointer", (*Bool)(nil), Null{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.in)
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if !Equal(got, tc.want) {
				t.Errorf("Resolve = %#v, want %#v", got, tc.want)
			}
		})
	}

	for _, in := range []Value{wrappedText{"x"}, &wrappedText{"x"}} {
		_, err := Resolve(in)
		var uve *UnsupportedValueError
		if !errors.As(err, &uve) {
			t.Errorf("Resolve(%T) error = %v, want *UnsupportedValueError", in, err)
		}
	}
	if _, err := FromNative(map[string]any{"w": wrappedText{"x"}}); err == nil {
		t.Error("FromNative accepted a value outside the variants")
	}
}

func TestToNative(t *testing.T) {
	v := Dict{
		"b": Bool(true),
		"l": List{Int(1), Null{}},
		"f": Float(1.5),
	}
	got, ok := ToNative(v).(map[string]any)
	if !ok {
		t.Fatalf("ToNative(dict) type = %T", ToNative(v))
	}
	if got["b"] != true || got["f"] != 1.5 {
		t.Errorf("ToNative scalars = %v", got)
	}
	l, ok := got["l"].([]any)
	if !ok || len(l) != 2 || l[0] != int64(1) || l[1] != nil {
		t.Errorf("ToNative list = %#v", got["l"])
	}
}
