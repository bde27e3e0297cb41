package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/agentroom/core"
)

// DefaultDir is where FileStore keeps records unless configured otherwise.
const DefaultDir = "./memory"

// FileStore keeps one JSON document per agent at <dir>/<name>_memory.json.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir (DefaultDir if empty).
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{dir: dir}
}

// Path returns the record file for name.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, sanitize(name)+"_memory.json")
}

// Load reads and decodes the record for name.
func (s *FileStore) Load(_ context.Context, name string) (*core.MemoryRecord, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ErrRecordNotFound
		}
		return nil, fmt.Errorf("read memory record %s: %w", name, err)
	}
	var rec core.MemoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode memory record %s: %w", name, err)
	}
	return &rec, nil
}

// Save writes the record for name through a temp file and rename.
func (s *FileStore) Save(_ context.Context, name string, rec *core.MemoryRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory record %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, sanitize(name)+"_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write memory record %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close memory record %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit memory record %s: %w", name, err)
	}
	return nil
}

// sanitize keeps record names inside the store directory.
func sanitize(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		return "_"
	}
	return name
}
