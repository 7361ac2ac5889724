/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: filestore.go
Description: File persistence for exported rule cache entries. Entries are written as a
zstd-compressed JSON document through an afero filesystem, replacing the previous file
atomically via rename.
*/

package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

const fileFormatVersion = 1

type fileDocument struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// FileStore saves and loads cache exports
type FileStore struct {
	Fs   afero.Fs
	Path string
}

// NewFileStore returns a store for path on the OS filesystem
func NewFileStore(path string) *FileStore {
	return &FileStore{Fs: afero.NewOsFs(), Path: path}
}

// Save replaces the stored entries
func (s *FileStore) Save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(fileDocument{Version: fileFormatVersion, Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to encode cache entries: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(data, nil)
	enc.Close()

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := s.Fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := afero.WriteFile(s.Fs, tmp, compressed, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := s.Fs.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Load returns the stored entries. A missing file yields no entries.
func (s *FileStore) Load() ([]Entry, error) {
	compressed, err := afero.ReadFile(s.Fs, s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress cache file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cache file: %w", err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("unsupported cache file version %d", doc.Version)
	}
	return doc.Entries, nil
}
