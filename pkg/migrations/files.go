// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"sigs.k8s.io/yaml"
)

const (
	upSQLSuffix   = ".up.sql"
	downSQLSuffix = ".down.sql"
)

// FSSource reads units from the top level of a filesystem. Files are applied
// in lexicographical order of their names.
type FSSource struct {
	FS fs.FS
}

// NewDirSource returns a Source reading units from the directory at path.
func NewDirSource(path string) (*FSSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat migrations directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations directory %q is not a directory", path)
	}

	return &FSSource{FS: os.DirFS(path)}, nil
}

// Units reads and validates every migration file in the filesystem.
func (s *FSSource) Units() ([]Unit, error) {
	files, err := CollectFilesFromDir(s.FS)
	if err != nil {
		return nil, fmt.Errorf("reading migration files: %w", err)
	}

	units := make([]Unit, 0, len(files))
	for _, file := range files {
		u, err := ReadUnit(s.FS, file)
		if err != nil {
			return nil, fmt.Errorf("reading migration file %q: %w", file, err)
		}
		units = append(units, *u)
	}

	if err := Validate(units); err != nil {
		return nil, err
	}

	return units, nil
}

// CollectFilesFromDir returns the names of all migration files in `dir`
// sorted lexicographically. Down migrations are skipped.
func CollectFilesFromDir(dir fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(dir, ".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !isMigrationFile(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	slices.Sort(files)

	return files, nil
}

// ReadUnit reads a single migration file. SQL files contribute their whole
// content as the unit body and are named after the file. JSON and YAML
// files hold a `name` and an `up` field; the name defaults to the file name.
func ReadUnit(dir fs.FS, filename string) (*Unit, error) {
	data, err := fs.ReadFile(dir, filename)
	if err != nil {
		return nil, err
	}

	u := &Unit{
		Name:   defaultName(filename),
		Source: filename,
	}

	switch filepath.Ext(filename) {
	case ".sql":
		u.Up = string(data)
	case ".json", ".yaml", ".yml":
		var raw Unit
		if err := yaml.UnmarshalStrict(data, &raw); err != nil {
			return nil, InvalidMigrationError{Reason: fmt.Sprintf("unable to parse %s: %s", filename, err)}
		}
		if raw.Name != "" {
			u.Name = raw.Name
		}
		u.Up = raw.Up
	default:
		return nil, InvalidMigrationError{Reason: fmt.Sprintf("unsupported migration file %q", filename)}
	}

	return u, nil
}

func isMigrationFile(name string) bool {
	if strings.HasSuffix(name, downSQLSuffix) {
		return false
	}
	switch filepath.Ext(name) {
	case ".sql", ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func defaultName(filename string) string {
	if strings.HasSuffix(filename, upSQLSuffix) {
		return strings.TrimSuffix(filename, upSQLSuffix)
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
