// Package upload owns uploaded image handles. Images are spooled to disk
// as temp files so that releasing a handle is an explicit, guaranteed
// operation rather than whenever a garbage collector gets around to it.
package upload

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	// Browsers commonly hand over webp; imaging registers the rest.
	_ "golang.org/x/image/webp"
)

// StoredImage is the handle for one spooled upload.
type StoredImage struct {
	Path        string
	Name        string
	ContentType string
	Width       int
	Height      int
	Size        int
}

// Spool manages the directory uploaded images live in.
type Spool struct {
	dir    string
	logger *zap.Logger
}

// NewSpool creates the spool directory if needed.
func NewSpool(dir string, logger *zap.Logger) (*Spool, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "photolabel-spool")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir %q: %w", dir, err)
	}
	return &Spool{dir: dir, logger: logger.Named("spool")}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Store validates the upload decodes as an image and writes it to a spool
// file. The caller owns the returned handle and must Release it.
func (s *Spool) Store(name string, data []byte) (*StoredImage, error) {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()

	f, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to close spool file: %w", err)
	}

	s.logger.Debug("spooled upload",
		zap.String("path", f.Name()),
		zap.String("name", name),
		zap.Int("bytes", len(data)))
	return &StoredImage{
		Path:        f.Name(),
		Name:        name,
		ContentType: contentType,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Size:        len(data),
	}, nil
}

// Read returns the spooled bytes for a handle path.
func (s *Spool) Read(path string) ([]byte, error) {
	if err := s.contains(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool file: %w", err)
	}
	return data, nil
}

// Release removes the spool file behind a handle path. Releasing an
// already-released handle is a no-op.
func (s *Spool) Release(path string) error {
	if path == "" {
		return nil
	}
	if err := s.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove spool file: %w", err)
	}
	return nil
}

// Sweep removes spool files older than maxAge, covering sessions that
// expired without an explicit reset.
func (s *Spool) Sweep(maxAge time.Duration) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("sweep failed to list spool dir", zap.Error(err))
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.dir, entry.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("sweep failed to remove spool file", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

// contains rejects paths outside the spool directory.
func (s *Spool) contains(path string) error {
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside the spool", path)
	}
	return nil
}
