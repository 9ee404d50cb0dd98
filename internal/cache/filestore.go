package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps one JSON file per key in a directory. Data persists
// across restarts. When the directory grows past maxSizeMB the least
// recently written files are dropped.
type FileStore struct {
	dir       string
	maxSizeMB int
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewFileStore creates the directory if it does not exist.
func NewFileStore(dir string, maxSizeMB int, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dir:       dir,
		maxSizeMB: maxSizeMB,
		logger:    logger,
	}, nil
}

// Load reads key's file. Corrupted files are removed and reported as a miss.
func (s *FileStore) Load(_ context.Context, key string) (StoredEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return StoredEntry{}, false, nil
	}
	if err != nil {
		return StoredEntry{}, false, err
	}

	e, err := decodeEntry(data)
	if err != nil {
		s.logger.Warn("Removing corrupted cache file",
			zap.String("file", path),
			zap.Error(err))
		_ = os.Remove(path)
		return StoredEntry{}, false, nil
	}
	return e, true, nil
}

// Save writes key's file atomically, dropping old files first if the size
// limit is reached.
func (s *FileStore) Save(ctx context.Context, key string, e StoredEntry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	for s.maxSizeMB > 0 && s.currentSizeMB() >= s.maxSizeMB {
		if !s.dropOldest(path) {
			break
		}
	}

	tmp, err := os.CreateTemp(s.dir, ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0640); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Delete removes key's file if present.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Count returns the number of stored entries.
func (s *FileStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entryFiles())
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// sanitizeKey maps a cache key onto a safe file name.
func sanitizeKey(key string) string {
	if key == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}

type entryFile struct {
	path string
	size int64
	mod  int64
}

// entryFiles lists entry files oldest first. Must be called with s.mu held.
func (s *FileStore) entryFiles() []entryFile {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var files []entryFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, entryFile{
			path: filepath.Join(s.dir, entry.Name()),
			size: info.Size(),
			mod:  info.ModTime().UnixNano(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })
	return files
}

// currentSizeMB must be called with s.mu held.
func (s *FileStore) currentSizeMB() int {
	var total int64
	for _, f := range s.entryFiles() {
		total += f.size
	}
	return int(total / (1024 * 1024))
}

// dropOldest removes the oldest entry other than keep. Must be called with
// s.mu held.
func (s *FileStore) dropOldest(keep string) bool {
	for _, f := range s.entryFiles() {
		if f.path == keep {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			s.logger.Warn("Failed to remove oldest cache file",
				zap.String("file", f.path),
				zap.Error(err))
			return false
		}
		s.logger.Warn("Cache directory full, dropped oldest entry", zap.String("file", f.path))
		return true
	}
	return false
}
