package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// File is a [Store] backed by a single JSON document on disk. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// reader never observes a half-written pair.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a store persisting to path. The file and its parent
// directory are created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Save implements [Store].
func (f *File) Save(_ context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return ErrEmptyAccessToken
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	return f.write(merge(current, accessToken, refreshToken))
}

// Load implements [Store].
func (f *File) Load(context.Context) (Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Clear implements [Store].
func (f *File) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (f *File) read() (Tokens, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Tokens{}, nil
		}
		return Tokens{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return Tokens{}, nil
	}

	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return tokens, nil
}

func (f *File) write(tokens Tokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
