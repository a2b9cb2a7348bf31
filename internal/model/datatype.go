package model

// Datatype tags the kind of value a single EAV row holds.
type Datatype string

const (
	TypeNone  Datatype = "none"
	TypeBool  Datatype = "bool"
	TypeInt   Datatype = "int"
	TypeFloat Datatype = "float"
	TypeText  Datatype = "txt"
	TypeDate  Datatype = "date"
	TypeList  Datatype = "list"
	TypeDict  Datatype = "dict"
	TypeJSON  Datatype = "json"
)

// String returns the string representation of the datatype.
func (d Datatype) String() string {
	return string(d)
}

// IsValid checks whether the datatype is a known tag.
func (d Datatype) IsValid() bool {
	switch d {
	case TypeNone, TypeBool, TypeInt, TypeFloat, TypeText, TypeDate, TypeList, TypeDict, TypeJSON:
		return true
	}
	return false
}

// IsContainer reports whether rows of this datatype own child rows.
func (d Datatype) IsContainer() bool {
	return d == TypeList || d == TypeDict
}

// Column returns the value column that carries data for this datatype.
// Containers store their declared child count in ival. None has no column.
func (d Datatype) Column() string {
	switch d {
	case TypeBool:
		return "bval"
	case TypeInt, TypeList, TypeDict:
		return "ival"
	case TypeFloat:
		return "fval"
	case TypeText, TypeJSON:
		return "tval"
	case TypeDate:
		return "dval"
	}
	return ""
}
