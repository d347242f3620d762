package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultJSONFile is the document file name inside the data directory.
const DefaultJSONFile = "data.json"

// JSONFile keeps the document in one JSON object on disk and replaces it
// atomically on every flush.
type JSONFile struct {
	path string
	perm os.FileMode
}

// NewJSONFile returns a backend writing to path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path, perm: 0o600}
}

// Path returns the document location.
func (f *JSONFile) Path() string { return f.path }

// Load reads the document. A missing or blank file is an empty document.
func (f *JSONFile) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, f.path, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Flush writes doc to a temporary file in the same directory, syncs it and
// renames it over the document.
func (f *JSONFile) Flush(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshalDocument(doc)
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, data, f.perm)
}

// Close is a no-op; the file is only open during Load and Flush.
func (f *JSONFile) Close() error { return nil }

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("settings: create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("settings: create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("settings: write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("settings: sync temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("settings: chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("settings: replace %s: %w", path, err)
	}

	// Directory sync is best effort.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
