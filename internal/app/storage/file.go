package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileBackend stores each record as <root>/<id>.json.
type FileBackend struct {
	root string
}

// NewFileBackend returns a backend rooted at dir. The directory is created by Ensure.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{root: dir}
}

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.root, id+RecordExt)
}

func (b *FileBackend) Ensure(ctx context.Context) error {
	return os.MkdirAll(b.root, 0o755)
}

func (b *FileBackend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	raw, err := os.ReadFile(b.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Put writes to a temporary sibling and renames it over the target, so readers
// see either the old or the new document.
func (b *FileBackend) Put(ctx context.Context, id string, raw []byte) error {
	tmp := filepath.Join(b.root, fmt.Sprintf(".%s.%s.tmp", id, uuid.NewString()))

	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.path(id)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// List returns the ids of *.json files in the root, in directory order (sorted by name).
func (b *FileBackend) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, RecordExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, RecordExt))
	}
	return ids, nil
}

func (b *FileBackend) Close() error {
	return nil
}
