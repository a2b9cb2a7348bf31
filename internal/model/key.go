package model

import (
	"strconv"
	"strings"
)

// Separator joins the segments of a nested key.
const Separator = "."

// ValidateKey checks that key can be used as a single key segment.
func ValidateKey(key string) error {
	if key == "" {
		return &InvalidKeyError{Key: key, Reason: "the key cannot be empty"}
	}
	if strings.Contains(key, Separator) {
		return &InvalidKeyError{Key: key, Reason: "the separator symbol '" + Separator + "' cannot be present in the key"}
	}
	return nil
}

// JoinKey appends child to parent. An empty parent returns child unchanged.
func JoinKey(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + Separator + child
}

// IndexKey returns the key of the i-th element of the list stored at parent.
func IndexKey(parent string, i int) string {
	return JoinKey(parent, strconv.Itoa(i))
}

// SplitKey splits key on its first separator.
func SplitKey(key string) (head, rest string, ok bool) {
	return strings.Cut(key, Separator)
}

// HasPrefixKey reports whether key is parent itself or lies below it.
func HasPrefixKey(key, parent string) bool {
	return key == parent || strings.HasPrefix(key, parent+Separator)
}
