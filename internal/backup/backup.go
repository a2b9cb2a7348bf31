// Package backup writes JSONL snapshots of EAV rows before the migrator
// deletes them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Destination is a target that stores named snapshot objects.
type Destination interface {
	// Write stores data under name, replacing any previous object.
	Write(ctx context.Context, name string, data []byte) error
}

// Multi fans a snapshot out to several destinations. Every destination is
// attempted; the combined error reports each one that failed.
type Multi struct {
	destinations []Destination
	logger       *slog.Logger
}

// NewMulti returns a destination writing to every given destination.
func NewMulti(logger *slog.Logger, destinations ...Destination) *Multi {
	return &Multi{destinations: destinations, logger: logger}
}

// Len returns the number of configured destinations.
func (m *Multi) Len() int {
	return len(m.destinations)
}

func (m *Multi) Write(ctx context.Context, name string, data []byte) error {
	var errs []error
	for i, dest := range m.destinations {
		if err := dest.Write(ctx, name, data); err != nil {
			m.logger.Error("backup destination write failed", "destination", i, "name", name, "err", err)
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Debug("backup written", "name", name, "destinations", len(m.destinations), "bytes", len(data))
	return nil
}
