package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// Save writes s into dir. Entries are staged in a temporary directory
// inside dir and moved into place only after all of them were written.
func Save(ctx context.Context, dir string, s Snapshot) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}

	entries, err := encode(ctx, s)
	if err != nil {
		return err
	}

	staging, err := os.MkdirTemp(dir, ".staging-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	names := slices.Sorted(maps.Keys(entries))
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(staging, name), entries[name], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	for _, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("move %s: %w", name, err)
		}
	}
	return nil
}

// Load reads a state saved by Save. Every png file in dir is loaded.
func Load(dir string) (*Loaded, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}

	doc, err := os.ReadFile(filepath.Join(dir, StateFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrStateNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", StateFile, err)
	}
	entries := map[string][]byte{StateFile: doc}

	images, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return nil, err
	}
	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		entries[filepath.Base(path)] = data
	}
	return decode(entries)
}
