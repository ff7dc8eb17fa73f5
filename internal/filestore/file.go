// Package filestore persists ordered record collections as human-readable
// JSON or YAML arrays.
package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrPersist marks a failure to read or write the backing file. Callers use
// errors.Is to tell it apart from domain errors such as "not found".
var ErrPersist = errors.New("persistence failure")

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a config value to a Format. Unknown values fall back to JSON.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Ext returns the file extension used for the format, including the dot.
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// formatFromPath picks the codec from the file extension.
func formatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// File is an array of T stored at a single path. It holds no state of its
// own; every Save rewrites the whole collection.
type File[T any] struct {
	path   string
	format Format
}

// New returns a File for path. The codec is chosen from the extension:
// .yaml/.yml use YAML, everything else JSON.
func New[T any](path string) *File[T] {
	return &File[T]{path: path, format: formatFromPath(path)}
}

func (f *File[T]) Path() string { return f.path }

// Load reads the collection. A missing file is an empty collection.
func (f *File[T]) Load() ([]T, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrPersist, f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var records []T
	switch f.format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &records)
	default:
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrPersist, f.path, err)
	}
	return records, nil
}

// Save writes the full collection, replacing the file atomically.
func (f *File[T]) Save(records []T) error {
	if records == nil {
		records = []T{}
	}

	data, err := f.encode(records)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPersist, f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrPersist, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrPersist, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %w", ErrPersist, f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %w", ErrPersist, f.path, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replacing %s: %w", ErrPersist, f.path, err)
	}
	return nil
}

func (f *File[T]) encode(records []T) ([]byte, error) {
	if f.format == FormatYAML {
		return yaml.Marshal(records)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
