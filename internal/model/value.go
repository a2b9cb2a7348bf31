package model

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// Value is a nested attribute value. The set of implementations is closed:
// Null, Bool, Int, Float, Text, Date, List, Dict and JSONDoc.
type Value interface {
	isValue()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean. It is never interchangeable with Int.
type Bool bool

// Int is a signed 64-bit integer.
type Int int64

// Float is a 64-bit float. NaN and the infinities are allowed.
type Float float64

// Text is a string.
type Text string

// Date is a point in time. Naive dates carry no zone of their own and are
// interpreted in the configured default location when stored.
type Date struct {
	Time  time.Time
	Naive bool
}

// List is an ordered sequence of values.
type List []Value

// Dict maps member names to values. Names must be valid keys.
type Dict map[string]Value

// JSONDoc is an arbitrary JSON document stored verbatim.
type JSONDoc json.RawMessage

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Int) isValue()     {}
func (Float) isValue()   {}
func (Text) isValue()    {}
func (Date) isValue()    {}
func (List) isValue()    {}
func (Dict) isValue()    {}
func (JSONDoc) isValue() {}

// Equal reports whether a and b hold the same value. NaN equals NaN, dates
// compare as instants, and a nil Value equals Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		if !ok {
			return false
		}
		if math.IsNaN(float64(av)) {
			return math.IsNaN(float64(bv))
		}
		return av == bv
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Date:
		bv, ok := b.(Date)
		return ok && av.Time.Equal(bv.Time)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Dict:
		bv, ok := b.(Dict)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, found := bv[k]
			if !found || !Equal(v, w) {
				return false
			}
		}
		return true
	case JSONDoc:
		bv, ok := b.(JSONDoc)
		if !ok {
			return false
		}
		var ca, cb bytes.Buffer
		if json.Compact(&ca, av) != nil || json.Compact(&cb, bv) != nil {
			return bytes.Equal(av, bv)
		}
		return bytes.Equal(ca.Bytes(), cb.Bytes())
	}
	return false
}
