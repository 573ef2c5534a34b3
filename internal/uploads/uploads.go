// Package uploads persists the original uploaded files on disk so a
// deployment can re-ingest its corpus after a schema change. The directory
// is guarded with an advisory file lock: saves, lists and removes take a
// shared lock, a clear takes an exclusive one, so a reset never tears a
// file mid-write.
package uploads

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// lockFile is the advisory lock inside the uploads directory.
const lockFile = ".uploads.lock"

// ErrInvalidFilename indicates an upload name that cannot be stored safely.
var ErrInvalidFilename = errors.New("invalid filename")

// FileInfo describes one stored upload.
type FileInfo struct {
	DocumentID string
	Name       string
	Size       int64
	StoredAt   time.Time
}

// Store is a directory of uploaded files, one subdirectory per document id.
//
// Safe for concurrent use across goroutines and processes.
type Store struct {
	dir    string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewStore creates the uploads directory if needed. logger may be nil.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating uploads directory: %w", err)
	}
	return &Store{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, lockFile)),
		logger: logger,
	}, nil
}

// Save stores an uploaded file and returns its generated document id.
// The id doubles as the on-disk subdirectory name, so original filenames
// never touch the filesystem path.
func (s *Store) Save(filename string, data []byte) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == ".." || name == lockFile {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	if err := s.lock.RLock(); err != nil {
		return "", fmt.Errorf("locking uploads directory: %w", err)
	}
	defer s.unlock()

	docID := uuid.NewString()
	docDir := filepath.Join(s.dir, docID)
	if err := os.MkdirAll(docDir, 0o750); err != nil {
		return "", fmt.Errorf("creating document directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(docDir, name), data, 0o640); err != nil {
		return "", fmt.Errorf("writing upload %q: %w", name, err)
	}

	s.logger.Debug("upload stored", "document_id", docID, "name", name, "bytes", len(data))
	return docID, nil
}

// List returns all stored uploads, newest first.
func (s *Store) List() ([]FileInfo, error) {
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking uploads directory: %w", err)
	}
	defer s.unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading uploads directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		docID := entry.Name()
		inner, err := os.ReadDir(filepath.Join(s.dir, docID))
		if err != nil {
			continue
		}
		for _, f := range inner {
			info, err := f.Info()
			if err != nil {
				continue
			}
			files = append(files, FileInfo{
				DocumentID: docID,
				Name:       f.Name(),
				Size:       info.Size(),
				StoredAt:   info.ModTime(),
			})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].StoredAt.After(files[j].StoredAt) })
	return files, nil
}

// Remove deletes one document's stored files. Used to discard an upload
// whose indexing failed entirely, so the directory never holds originals
// with zero records behind them. Removing an unknown id is a no-op.
func (s *Store) Remove(documentID string) error {
	id := strings.TrimSpace(documentID)
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." || id == lockFile {
		return fmt.Errorf("%w: document id %q", ErrInvalidFilename, documentID)
	}

	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("locking uploads directory: %w", err)
	}
	defer s.unlock()

	if err := os.RemoveAll(filepath.Join(s.dir, id)); err != nil {
		return fmt.Errorf("removing document %q: %w", id, err)
	}
	s.logger.Debug("upload removed", "document_id", id)
	return nil
}

// Clear removes every stored upload and returns how many files were deleted.
// Takes the exclusive lock, so it waits out in-flight saves.
func (s *Store) Clear() (int, error) {
	if err := s.lock.Lock(); err != nil {
		return 0, fmt.Errorf("locking uploads directory: %w", err)
	}
	defer s.unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading uploads directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		inner, err := os.ReadDir(path)
		if err == nil {
			removed += len(inner)
		}
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("removing %q: %w", entry.Name(), err)
		}
	}

	s.logger.Info("uploads cleared", "files_removed", removed)
	return removed, nil
}

func (s *Store) unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("unlocking uploads directory", "error", err)
	}
}
