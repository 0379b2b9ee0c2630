package storage

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// SaveArchive writes s as a zip file at path. The archive is written
// next to path and renamed when complete.
func SaveArchive(ctx context.Context, path string, s Snapshot) (err error) {
	dir := filepath.Dir(path)
	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}

	entries, err := encode(ctx, s)
	if err != nil {
		return err
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(f)
	for _, name := range slices.Sorted(maps.Keys(entries)) {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := w.Write(entries[name]); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadArchive reads an archive written by SaveArchive.
func LoadArchive(path string) (*Loaded, error) {
	zr, err := zip.OpenReader(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		entries[f.Name] = data
	}
	return decode(entries)
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
