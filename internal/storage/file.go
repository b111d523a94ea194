package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fileBackend stores the state as a single JSON document.
type fileBackend struct {
	path string
}

// NewFileBackend returns a JSON file backend rooted at path.
func NewFileBackend(path string) Backend {
	return &fileBackend{path: path}
}

func (f *fileBackend) Name() string { return TypeFile }

// Load reads the state file. A missing file is a first run and yields an empty state.
func (f *fileBackend) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state file: %w", err)
	}
	return DecodeState(raw)
}

// Save writes the state to a temp file in the same directory and renames it over
// the previous file so readers never observe a partial document.
func (f *fileBackend) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := EncodeState(st)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (f *fileBackend) Close() error { return nil }
