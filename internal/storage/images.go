// Package storage persists uploaded images under the static directory and
// builds the public URLs they are served from.
package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// imagesSubdir is the directory under the static root where uploads land,
// matching the /static/images/ URL prefix.
const imagesSubdir = "images"

// Asset describes a stored upload.
type Asset struct {
	Filename  string
	Path      string
	PublicURL string
}

// ImageStoreConfig configures an ImageStore.
type ImageStoreConfig struct {
	// StaticDir is the root served under /static/.
	StaticDir string
	// PublicBaseURL prefixes generated asset URLs, e.g. https://api.example.com.
	PublicBaseURL string
	// NewID overrides filename id generation, mainly for tests.
	NewID func() string
}

// ImageStore writes image payloads to disk with collision-resistant names.
type ImageStore struct {
	staticDir     string
	publicBaseURL string
	newID         func() string
}

// NewImageStore ensures the images directory exists and returns a store.
func NewImageStore(cfg ImageStoreConfig) (*ImageStore, error) {
	staticDir := strings.TrimSpace(cfg.StaticDir)
	if staticDir == "" {
		return nil, fmt.Errorf("static directory is required")
	}
	if err := os.MkdirAll(filepath.Join(staticDir, imagesSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &ImageStore{
		staticDir:     staticDir,
		publicBaseURL: strings.TrimSuffix(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		newID:         newID,
	}, nil
}

// Save writes the payload to a freshly named file preserving the original
// extension and returns the stored asset with its public URL.
func (s *ImageStore) Save(originalFilename string, payload io.Reader) (Asset, error) {
	filename := s.newID() + sanitizeExtension(originalFilename)
	fullPath := filepath.Join(s.staticDir, imagesSubdir, filename)

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Asset{}, fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(file, payload); err != nil {
		file.Close()
		os.Remove(fullPath)
		return Asset{}, fmt.Errorf("write image file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(fullPath)
		return Asset{}, fmt.Errorf("flush image file: %w", err)
	}

	relPath := path.Join("static", imagesSubdir, filename)
	return Asset{
		Filename:  filename,
		Path:      fullPath,
		PublicURL: s.publicBaseURL + "/" + relPath,
	}, nil
}

// sanitizeExtension keeps the original extension when it is a plain
// alphanumeric suffix and drops anything that could escape the directory or
// smuggle path separators.
func sanitizeExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" || ext == "." {
		return ""
	}
	for _, r := range ext[1:] {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			return ""
		}
	}
	return ext
}
