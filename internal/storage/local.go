package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const metaSuffix = ".meta"

// LocalStorage implements Storage on the local filesystem. Metadata is kept
// next to each object in a JSON sidecar.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Put writes content and its metadata sidecar
func (s *LocalStorage) Put(ctx context.Context, key string, content []byte, metadata *Metadata) error {
	fullPath := s.keyToPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	if metadata != nil {
		metaBytes, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := os.WriteFile(fullPath+metaSuffix, metaBytes, 0o644); err != nil {
			return fmt.Errorf("failed to write metadata for %s: %w", key, err)
		}
	}
	return nil
}

func (s *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(s.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return content, nil
}

// GetMetadata reads the sidecar written by Put
func (s *LocalStorage) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	raw, err := os.ReadFile(s.keyToPath(key) + metaSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", key, err)
	}
	return &m, nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.keyToPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", key, err)
}

// Delete removes an object and its sidecar; missing keys are not an error
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath := s.keyToPath(key)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	_ = os.Remove(fullPath + metaSuffix)
	return nil
}

func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		if key := s.pathToKey(p); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// keyToPath maps a key below basePath; ".." segments cannot escape it
func (s *LocalStorage) keyToPath(key string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(s.basePath, clean)
}

func (s *LocalStorage) pathToKey(p string) string {
	rel, err := filepath.Rel(s.basePath, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

// BasePath returns the root directory of this storage
func (s *LocalStorage) BasePath() string {
	return s.basePath
}
