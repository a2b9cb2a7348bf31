// Package eav flattens nested attribute values into typed EAV rows keyed by
// dotted paths, and rebuilds them from those rows.
package eav

import "github.com/alfredjeanlab/provattrs/internal/model"

// Classify returns the datatype tag for v. A nil Value is none and pointers
// classify as the variant they point to. Anything model.Resolve rejects gets
// the empty Datatype, which is not valid.
func Classify(v model.Value) model.Datatype {
	v, err := model.Resolve(v)
	if err != nil {
		return ""
	}
	switch v.(type) {
	case nil, model.Null:
		return model.TypeNone
	case model.Bool:
		return model.TypeBool
	case model.Int:
		return model.TypeInt
	case model.Float:
		return model.TypeFloat
	case model.Text:
		return model.TypeText
	case model.Date:
		return model.TypeDate
	case model.List:
		return model.TypeList
	case model.Dict:
		return model.TypeDict
	case model.JSONDoc:
		return model.TypeJSON
	}
	return ""
}
