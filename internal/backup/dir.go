package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirDestination writes snapshots as files in a local directory.
type DirDestination struct {
	dir string
}

// NewDirDestination returns a destination rooted at dir. The directory is
// created on first write.
func NewDirDestination(dir string) *DirDestination {
	return &DirDestination{dir: dir}
}

// Write stores data in dir/name through a temporary file and a rename, so a
// reader never sees a partial snapshot.
func (d *DirDestination) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(d.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".backup-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
