package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"postureserver/internal/logger"

	"github.com/google/uuid"
)

// AllowedVideoExtensions lists accepted upload extensions, lower-case and without the dot.
var AllowedVideoExtensions = []string{"mp4", "avi", "mov", "mkv"}

// AllowedVideoFile reports whether filename carries an accepted video extension (case-insensitive).
func AllowedVideoFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range AllowedVideoExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// UploadStore keeps uploaded videos on disk only while they are being analyzed.
// Files are named <uuid>.<ext>; client-supplied names never reach the filesystem.
type UploadStore struct {
	dir     string
	logger  *logger.Logger
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewUploadStore ensures dir exists.
func NewUploadStore(dir string, logger *logger.Logger) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadStore{
		dir:     dir,
		logger:  logger,
		pending: make(map[string]struct{}),
	}, nil
}

// Dir returns the upload directory.
func (s *UploadStore) Dir() string {
	return s.dir
}

// Save copies src into a new transient file and returns its path.
func (s *UploadStore) Save(src io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	fullpath := filepath.Join(s.dir, uuid.NewString()+ext)

	file, err := os.OpenFile(fullpath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	written, err := io.Copy(file, src)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(fullpath)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	s.mu.Lock()
	s.pending[fullpath] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Saved upload %s as %s (%d bytes)", originalName, filepath.Base(fullpath), written)
	return fullpath, nil
}

// Remove deletes a transient file. Removing an already missing file is not an error.
func (s *UploadStore) Remove(path string) {
	s.mu.Lock()
	delete(s.pending, path)
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to remove upload %s: %v", path, err)
	}
}

// Pending returns how many saved files have not been removed yet.
func (s *UploadStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep removes leftover transient files from a previous run. Only files whose
// base name is a uuid are touched.
func (s *UploadStore) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := uuid.Parse(strings.TrimSuffix(name, filepath.Ext(name))); err != nil {
			continue
		}

		s.mu.Lock()
		_, inFlight := s.pending[filepath.Join(s.dir, name)]
		s.mu.Unlock()
		if inFlight {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warning("Failed to sweep %s: %v", name, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Swept %d stale upload(s) from %s", removed, s.dir)
	}
	return removed, nil
}
