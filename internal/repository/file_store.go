package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	errEmptyName = errors.New("record name cannot be empty")
	safeName     = regexp.MustCompile(`^[A-Za-z0-9+_.-]{1,128}$`)
)

// jsonDir stores one JSON document per record in a directory. Writes go
// through a temp file, fsync and rename so readers never see a partial file.
type jsonDir struct {
	dir string
}

func newJSONDir(dir string) *jsonDir {
	return &jsonDir{dir: dir}
}

func (d *jsonDir) path(name string) (string, error) {
	if name == "" {
		return "", errEmptyName
	}
	if !safeName.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid record name %q", name)
	}
	return filepath.Join(d.dir, name+".json"), nil
}

// read decodes the named record into v; a missing record yields os.ErrNotExist
func (d *jsonDir) read(name string, v any) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(p), err)
	}
	return nil
}

func (d *jsonDir) write(name string, v any) error {
	destPath, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure data directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	tmpFile, err := os.CreateTemp(d.dir, "tmp-"+name+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(destPath), err)
	}
	return nil
}

// remove deletes the named record and reports whether it existed
func (d *jsonDir) remove(name string) (bool, error) {
	p, err := d.path(name)
	if err != nil {
		return false, err
	}
	err = os.Remove(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to delete %s: %w", filepath.Base(p), err)
}

// names lists stored record names, skipping in-flight temp files
func (d *jsonDir) names() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", d.dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".json"))
	}
	return out, nil
}
