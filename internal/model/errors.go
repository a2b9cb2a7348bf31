package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUniquenessConflict is matched by errors.Is when a write collides with
// an existing key.
var ErrUniquenessConflict = errors.New("uniqueness conflict")

// InvalidKeyError reports a key that is empty, contains the separator, or
// is not a string at all.
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %q: %s", e.Key, e.Reason)
}

// UnsupportedValueError reports a value that has no storable encoding.
type UnsupportedValueError struct {
	Value any
	Err   error
}

func (e *UnsupportedValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported value of type %T: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("unsupported value of type %T", e.Value)
}

func (e *UnsupportedValueError) Unwrap() error {
	return e.Err
}

// DeserializationError reports stored rows that cannot be rebuilt into a
// value. Source names where the rows came from (a table, a file) and Owner
// names the entity that owns them, e.g. "node_id=42".
type DeserializationError struct {
	Source string
	Owner  string
	Key    string
	Msg    string
}

func (e *DeserializationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Msg)
	b.WriteString(" (stored in ")
	if e.Source != "" {
		b.WriteString(e.Source)
	} else {
		b.WriteString("the data passed")
	}
	if e.Owner != "" {
		b.WriteString(" for ")
		b.WriteString(e.Owner)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, ", key=%q", e.Key)
	}
	b.WriteString(")")
	return b.String()
}

// UniquenessConflictError reports an insert that hit an existing key.
type UniquenessConflictError struct {
	Table string
	Key   string
	Err   error
}

func (e *UniquenessConflictError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("uniqueness conflict in %s for key %q", e.Table, e.Key)
	}
	return fmt.Sprintf("uniqueness conflict in %s", e.Table)
}

func (e *UniquenessConflictError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrUniquenessConflict) match.
func (e *UniquenessConflictError) Is(target error) bool {
	return target == ErrUniquenessConflict
}
