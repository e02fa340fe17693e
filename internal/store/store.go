package store

import (
	"fmt"

	"github.com/spf13/afero"
)

// FileStore retrieves resource text by path
type FileStore interface {
	// ReadFile returns the full text of the file at path
	ReadFile(path string) (string, error)
	// Exists reports whether path names a regular file
	Exists(path string) bool
	// DirExists reports whether path names a directory
	DirExists(path string) bool
}

// AferoStore implements FileStore on top of an afero filesystem
type AferoStore struct {
	fs afero.Fs
}

var _ FileStore = (*AferoStore)(nil)

// New creates a store reading from fs
func New(fs afero.Fs) *AferoStore {
	return &AferoStore{fs: fs}
}

// NewOSStore creates a store reading from the operating system filesystem
func NewOSStore() *AferoStore {
	return New(afero.NewOsFs())
}

// Fs returns the underlying filesystem
func (s *AferoStore) Fs() afero.Fs {
	return s.fs
}

// ReadFile reads the file at path as text
func (s *AferoStore) ReadFile(path string) (string, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// Exists reports whether path is an existing regular file
func (s *AferoStore) Exists(path string) bool {
	info, err := s.fs.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// DirExists reports whether path is an existing directory
func (s *AferoStore) DirExists(path string) bool {
	ok, err := afero.DirExists(s.fs, path)
	return err == nil && ok
}
