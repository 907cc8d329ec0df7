package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/your-org/attend/internal/vision"
)

// SaveGallery writes the gallery to path atomically.
func SaveGallery(path string, g vision.Gallery) error {
	data, err := msgpack.Marshal(map[string][]vision.Embedding(g))
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".gallery-*")
	if err != nil {
		return fmt.Errorf("create temp gallery: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close gallery: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace gallery: %w", err)
	}
	return nil
}

// LoadGallery reads a gallery written by SaveGallery. A missing file is an
// empty gallery.
func LoadGallery(path string) (vision.Gallery, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return vision.Gallery{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}

	var m map[string][]vision.Embedding
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode gallery: %w", err)
	}
	if m == nil {
		m = map[string][]vision.Embedding{}
	}
	return vision.Gallery(m), nil
}
