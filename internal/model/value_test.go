package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDatatype_IsValid(t *testing.T) {
	for _, tc := range []struct {
		typ  Datatype
		want bool
	}{
		{TypeNone, true},
		{TypeBool, true},
		{TypeInt, true},
		{TypeFloat, true},
		{TypeText, true},
		{TypeDate, true},
		{TypeList, true},
		{TypeDict, true},
		{TypeJSON, true},
		{Datatype(""), false},
		{Datatype("string"), false},
	} {
		if got := tc.typ.IsValid(); got != tc.want {
			t.Errorf("Datatype(%q).IsValid() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestDatatype_Column(t *testing.T) {
	for _, tc := range []struct {
		typ  Datatype
		want string
	}{
		{TypeNone, ""},
		{TypeBool, "bval"},
		{TypeInt, "ival"},
		{TypeFloat, "fval"},
		{TypeText, "tval"},
		{TypeDate, "dval"},
		{TypeList, "ival"},
		{TypeDict, "ival"},
		{TypeJSON, "tval"},
	} {
		if got := tc.typ.Column(); got != tc.want {
			t.Errorf("Datatype(%q).Column() = %q, want %q", tc.typ, got, tc.want)
		}
	}
}

func TestEqual(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		name string
		a, b Value
		want bool
	}{
		{"NullNil", Null{}, nil, true},
		{"BoolVsInt", Bool(true), Int(1), false},
		{"IntVsFloat", Int(1), Float(1), false},
		{"NaN", Float(math.NaN()), Float(math.NaN()), true},
		{"NaNVsText", Float(math.NaN()), Text("NaN"), false},
		{"DateSameInstant", Date{Time: now}, Date{Time: now.In(time.FixedZone("x", 3600))}, true},
		{"ListOrder", List{Int(1), Int(2)}, List{Int(2), Int(1)}, false},
		{"ListEqual", List{Int(1), Text("a")}, List{Int(1), Text("a")}, true},
		{"DictEqual", Dict{"a": Int(1), "b": List{}}, Dict{"b": List{}, "a": Int(1)}, true},
		{"DictMissingKey", Dict{"a": Int(1)}, Dict{"b": Int(1)}, false},
		{"DictVsList", Dict{}, List{}, false},
		{"JSONWhitespace", JSONDoc(`{"a": 1}`), JSONDoc(`{"a":1}`), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.want {
				t.Errorf("Equal(%#v, %#v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	for _, tc := range []struct {
		key     string
		wantErr bool
	}{
		{"a", false},
		{"with space", false},
		{"0", false},
		{"", true},
		{"a.b", true},
		{".", true},
	} {
		err := ValidateKey(tc.key)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tc.key, err, tc.wantErr)
		}
		var ike *InvalidKeyError
		if err != nil && !errors.As(err, &ike) {
			t.Errorf("ValidateKey(%q) error type = %T, want *InvalidKeyError", tc.key, err)
		}
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := JoinKey("a", "b"); got != "a.b" {
		t.Errorf("JoinKey = %q", got)
	}
	if got := JoinKey("", "b"); got != "b" {
		t.Errorf("JoinKey empty parent = %q", got)
	}
	if got := IndexKey("list", 3); got != "list.3" {
		t.Errorf("IndexKey = %q", got)
	}
	head, rest, ok := SplitKey("a.b.c")
	if !ok || head != "a" || rest != "b.c" {
		t.Errorf("SplitKey = %q, %q, %v", head, rest, ok)
	}
	if _, _, ok := SplitKey("abc"); ok {
		t.Error("SplitKey(abc) should not split")
	}
	if !HasPrefixKey("a.b", "a") || !HasPrefixKey("a", "a") {
		t.Error("HasPrefixKey should match parent and children")
	}
	if HasPrefixKey("ab", "a") {
		t.Error("HasPrefixKey(ab, a) should be false")
	}
}

func TestErrorsFormatting(t *testing.T) {
	de := &DeserializationError{Owner: "node_id=7", Key: "x", Msg: "wrong dict length"}
	if got, want := de.Error(), `wrong dict length (stored in the data passed for node_id=7, key="x")`; got != want {
		t.Errorf("DeserializationError.Error() = %q, want %q", got, want)
	}

	ue := &UniquenessConflictError{Table: "db_attribute", Key: "a", Err: errors.New("dup")}
	if !errors.Is(ue, ErrUniquenessConflict) {
		t.Error("UniquenessConflictError should match ErrUniquenessConflict")
	}
	if errors.Unwrap(ue) == nil {
		t.Error("UniquenessConflictError should unwrap to the driver error")
	}
}
