package model

import "time"

// Row is one flattened EAV record. Exactly the column named by
// Datatype.Column() is meaningful; list and dict rows carry their declared
// child count in IVal.
type Row struct {
	Key      string     `json:"key"`
	Datatype Datatype   `json:"datatype"`
	TVal     string     `json:"tval"`
	FVal     *float64   `json:"fval"`
	IVal     *int64     `json:"ival"`
	BVal     *bool      `json:"bval"`
	DVal     *time.Time `json:"dval"`
}

// Clear resets every value column.
func (r *Row) Clear() {
	r.TVal = ""
	r.FVal = nil
	r.IVal = nil
	r.BVal = nil
	r.DVal = nil
}

// HasValue reports whether the column for the row's datatype is populated.
// None rows always report true; text rows treat "" as a value.
func (r *Row) HasValue() bool {
	switch r.Datatype {
	case TypeBool:
		return r.BVal != nil
	case TypeInt, TypeList, TypeDict:
		return r.IVal != nil
	case TypeFloat:
		return r.FVal != nil
	case TypeDate:
		return r.DVal != nil
	}
	return true
}
