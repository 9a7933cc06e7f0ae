package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// fileBackend keeps records as files in one directory.
type fileBackend struct {
	dir string
}

// NewFileStore returns a Store that keeps records in dir, creating it when
// needed.
func NewFileStore(dir string, log *slog.Logger) (*Records, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", dir, err)
	}
	return newRecords(&fileBackend{dir: dir}, log), nil
}

func (b *fileBackend) path(name string) string {
	return filepath.Join(b.dir, name)
}

func (b *fileBackend) get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.path(name))
	if os.IsNotExist(err) {
		return nil, errNotFound
	}
	return data, err
}

// put writes to a temporary sibling and renames it over the record, so a
// crash leaves either the old or the new record.
func (b *fileBackend) put(_ context.Context, name string, data []byte) error {
	path := b.path(name)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func (b *fileBackend) list(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (b *fileBackend) location() string {
	return b.dir
}

func (b *fileBackend) close() error {
	return nil
}
