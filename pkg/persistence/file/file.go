// Package file provides file-based persistence that keeps the whole store in one JSON snapshot.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/dukex/flowdesk/pkg/persistence/memory"
)

const snapshotName = "flowdesk.json"

// Persistence implements the persistence.Persistence interface using the file system.
// Data is served from memory and the snapshot is rewritten on every commit.
type Persistence struct {
	*memory.Persistence

	root string
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	fp := &Persistence{root: cleanRoot}

	data, err := os.ReadFile(fp.path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	store, err := memory.Restore(data, fp.write)
	if err != nil {
		return nil, err
	}

	fp.Persistence = store

	return fp, nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) path() string {
	return filepath.Join(fp.root, snapshotName)
}

// write replaces the snapshot through a rename so readers never see a partial file.
func (fp *Persistence) write(_ context.Context, snapshot []byte) error {
	if err := os.MkdirAll(fp.root, 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := fp.path() + ".tmp"

	if err := os.WriteFile(tmp, snapshot, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return os.Rename(tmp, fp.path())
}

var _ persistence.Persistence = (*Persistence)(nil)
