package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileSink writes records as CSV and/or JSON plus a run summary into a directory.
type FileSink struct {
	dir    string
	format string
	logger *slog.Logger
}

// NewFileSink creates a file sink. format is "csv", "json" or "both".
func NewFileSink(dir, format string, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{dir: dir, format: format, logger: logger.With("component", "file_sink")}
}

func (s *FileSink) Name() string { return "files" }

// Save writes <name>.csv, <name>.json and <name>_summary.json.
func (s *FileSink) Save(ctx context.Context, snap Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	csvOut, jsonOut := Formats(s.format)
	if csvOut {
		data, err := EncodeCSV(snap.Result.Records)
		if err != nil {
			return err
		}
		if err := s.write(snap.Name+".csv", data); err != nil {
			return err
		}
	}
	if jsonOut {
		data, err := EncodeRecordsJSON(snap.Result.Records)
		if err != nil {
			return fmt.Errorf("failed to encode records: %w", err)
		}
		if err := s.write(snap.Name+".json", data); err != nil {
			return err
		}
	}

	summary, err := EncodeSummaryJSON(snap.Result)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return s.write(snap.Name+"_summary.json", summary)
}

func (s *FileSink) write(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	s.logger.Info("Data saved", "path", path, "bytes", len(data))
	return nil
}

// writeFileAtomic writes data to a temporary file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// FileURLCache keeps discovered URLs in a JSON file.
type FileURLCache struct {
	path string
}

// NewFileURLCache creates a file-backed URL cache.
func NewFileURLCache(path string) *FileURLCache {
	return &FileURLCache{path: path}
}

// Load returns the cached URLs. A missing file is an empty cache.
func (c *FileURLCache) Load(ctx context.Context) (map[string]string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read url cache: %w", err)
	}
	urls := map[string]string{}
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("failed to parse url cache %s: %w", c.path, err)
	}
	return urls, nil
}

// Store replaces the cached URLs.
func (c *FileURLCache) Store(ctx context.Context, urls map[string]string) error {
	data, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode url cache: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create url cache directory: %w", err)
		}
	}
	return writeFileAtomic(c.path, data)
}
