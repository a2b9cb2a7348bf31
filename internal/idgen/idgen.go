// Package idgen generates migration run identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RunPrefix is prepended to every migration run id.
const RunPrefix = "mig-"

// Alphabet is the character set of the random part. Lowercase only so run
// ids are safe in object-store keys and NATS subjects.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters (excluding the prefix).
const Length = 12

// RunID returns a new migration run id.
func RunID() (string, error) {
	return WithPrefix(RunPrefix)
}

// WithPrefix returns a new random id with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
