// Package store owns the on-disk catalog document and the image cache
// directory. It is the single writer for both; everything else reads
// through it.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/glowkit/glowd/internal/catalog"
)

// ErrNotFound is returned when no persisted catalog or image exists.
var ErrNotFound = errors.New("not found")

const (
	catalogFileName = "catalog.json"
	imagesDirName   = "images"
)

// Store persists the last-known-good catalog document and cached images
// under a single data directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir. The directory itself is created
// eagerly; the image subdirectory lazily on first access.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// CatalogPath returns the path of the persisted catalog document.
func (s *Store) CatalogPath() string {
	return filepath.Join(s.dir, catalogFileName)
}

// LoadCatalog reads and decodes the persisted catalog document.
//
// A missing file returns ErrNotFound. An undecodable file is deleted so
// the failure cannot repeat, then: ordinary corruption reports ErrNotFound
// (self-healing), while an unsupported version is surfaced as a
// SchemaError so callers can tell the user to update instead of treating
// it as corruption.
func (s *Store) LoadCatalog() (*catalog.Catalog, error) {
	raw, err := os.ReadFile(s.CatalogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	cat, err := catalog.Decode(raw)
	if err != nil {
		if rmErr := os.Remove(s.CatalogPath()); rmErr != nil {
			log.Warn().Err(rmErr).Msg("Failed to remove unreadable catalog file")
		}
		var se *catalog.SchemaError
		if errors.As(err, &se) && se.Reason == catalog.ReasonUnsupportedVersion {
			return nil, err
		}
		log.Warn().Err(err).Msg("Persisted catalog is corrupt, removed")
		return nil, ErrNotFound
	}

	return cat, nil
}

// SaveCatalog writes the raw catalog document to durable storage. Callers
// must only pass bytes that already decoded successfully, so a bad fetch
// can never destroy a previously good catalog. The write is atomic: a
// temp file is renamed into place, and a cancelled or crashed write never
// leaves a partial document visible to LoadCatalog.
func (s *Store) SaveCatalog(raw []byte) error {
	return atomicWrite(s.CatalogPath(), raw)
}

// ImageDir returns the image cache directory, creating it if needed.
// Creation is idempotent.
func (s *Store) ImageDir() (string, error) {
	dir := filepath.Join(s.dir, imagesDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	return dir, nil
}

// ImagePath returns the cache path for a model's artwork.
func (s *Store) ImagePath(modelID string) string {
	return filepath.Join(s.dir, imagesDirName, imageFileName(modelID))
}

// ReadImage returns the cached image bytes for a model, or ErrNotFound.
func (s *Store) ReadImage(modelID string) ([]byte, error) {
	data, err := os.ReadFile(s.ImagePath(modelID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cached image: %w", err)
	}
	return data, nil
}

// WriteImage persists image bytes under the model's cache key, atomically.
func (s *Store) WriteImage(modelID string, data []byte) error {
	if _, err := s.ImageDir(); err != nil {
		return err
	}
	return atomicWrite(s.ImagePath(modelID), data)
}

// RemoveImage deletes a cached image. Missing files are not an error.
func (s *Store) RemoveImage(modelID string) error {
	err := os.Remove(s.ImagePath(modelID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// imageFileName maps a model ID to a safe file name.
func imageFileName(modelID string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(modelID)
}

// atomicWrite writes data to path via a temp file + rename so readers
// never observe a partial file.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
