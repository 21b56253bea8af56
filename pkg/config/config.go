// SPDX-License-Identifier: Apache-2.0

// Package config loads the list of logical databases to bootstrap from a
// YAML, JSON or TOML file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"sigs.k8s.io/yaml"

	"github.com/cloudgames/schemaboot/internal/jsonschema"
	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/migrations"
	"github.com/cloudgames/schemaboot/pkg/target"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatOf returns the Format matching the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported configuration file %q", path)
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type Config struct {
	MaxRetries     int        `json:"maxRetries,omitempty"`
	Delay          *Duration  `json:"delay,omitempty"`
	AttemptTimeout *Duration  `json:"attemptTimeout,omitempty"`
	Backoff        string     `json:"backoff,omitempty"`
	LockTimeoutMs  int        `json:"lockTimeoutMs,omitempty"`
	Databases      []Database `json:"databases"`
}

type Database struct {
	Name                string `json:"name"`
	Driver              string `json:"driver"`
	URL                 string `json:"url"`
	Schema              string `json:"schema,omitempty"`
	Migrations          string `json:"migrations"`
	HistoryTable        string `json:"historyTable,omitempty"`
	Role                string `json:"role,omitempty"`
	MaintenanceDatabase string `json:"maintenanceDatabase,omitempty"`
	LockTimeoutMs       int    `json:"lockTimeoutMs,omitempty"`
}

// Load reads, validates and expands the configuration file at path.
// Relative migration directories are resolved against the directory of
// the file.
func Load(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	cfg, err := Parse(data, format, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range cfg.Databases {
		if dir := cfg.Databases[i].Migrations; !filepath.IsAbs(dir) {
			cfg.Databases[i].Migrations = filepath.Join(base, dir)
		}
	}

	return cfg, nil
}

// Parse decodes a configuration document. lookup resolves the ${VAR}
// references found in string values.
func Parse(data []byte, format Format, lookup func(string) (string, bool)) (*Config, error) {
	doc, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}

	if err := jsonschema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := cfg.expand(lookup); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func toJSON(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatYAML, FormatJSON:
		doc, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", format, err)
		}
		return doc, nil
	case FormatTOML:
		var v map[string]any
		if err := toml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parsing toml: %w", err)
		}
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expand replaces ${VAR} references in the string fields of every database.
// All missing variables are reported together.
func (c *Config) expand(lookup func(string) (string, bool)) error {
	var errs []error

	expand := func(db, s string) string {
		return envRef.ReplaceAllStringFunc(s, func(ref string) string {
			name := envRef.FindStringSubmatch(ref)[1]
			v, ok := lookup(name)
			if !ok {
				errs = append(errs, fmt.Errorf("database %q: environment variable %s is not set", db, name))
			}
			return v
		})
	}

	for i := range c.Databases {
		d := &c.Databases[i]
		d.URL = expand(d.Name, d.URL)
		d.Schema = expand(d.Name, d.Schema)
		d.Migrations = expand(d.Name, d.Migrations)
		d.Role = expand(d.Name, d.Role)
	}

	return errors.Join(errs...)
}

// CoordinatorOptions returns the bootstrap options set by the file.
func (c *Config) CoordinatorOptions() []bootstrap.Option {
	var opts []bootstrap.Option
	if c.MaxRetries > 0 {
		opts = append(opts, bootstrap.WithMaxRetries(c.MaxRetries))
	}
	if c.Delay != nil {
		opts = append(opts, bootstrap.WithDelay(time.Duration(*c.Delay)))
	}
	if c.AttemptTimeout != nil {
		opts = append(opts, bootstrap.WithAttemptTimeout(time.Duration(*c.AttemptTimeout)))
	}
	if c.Backoff != "" {
		opts = append(opts, bootstrap.WithBackoffStrategy(bootstrap.BackoffStrategy(c.Backoff)))
	}
	return opts
}

// TargetOptions returns the target options for d, falling back to the
// file-wide lock timeout.
func (c *Config) TargetOptions(d Database) []target.Option {
	lockTimeout := d.LockTimeoutMs
	if lockTimeout == 0 {
		lockTimeout = c.LockTimeoutMs
	}

	opts := []target.Option{
		target.WithHistoryTable(d.HistoryTable),
		target.WithMaintenanceDatabase(d.MaintenanceDatabase),
	}
	if lockTimeout > 0 {
		opts = append(opts, target.WithLockTimeoutMs(lockTimeout))
	}
	if d.Role != "" {
		opts = append(opts, target.WithRole(d.Role))
	}
	return opts
}

// Registrations opens a target and a migration source for every database.
// The returned function closes the targets. On error every target opened so
// far is closed.
func (c *Config) Registrations() ([]bootstrap.Registration, func() error, error) {
	regs := make([]bootstrap.Registration, 0, len(c.Databases))

	closeAll := func() error {
		var errs []error
		for _, r := range regs {
			errs = append(errs, r.Target.Close())
		}
		return errors.Join(errs...)
	}

	for _, d := range c.Databases {
		source, err := migrations.NewDirSource(d.Migrations)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("database %q: %w", d.Name, err)
		}

		t, err := target.New(target.Driver(d.Driver), d.URL, d.Schema, c.TargetOptions(d)...)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("database %q: %w", d.Name, err)
		}

		regs = append(regs, bootstrap.Registration{
			Name:   d.Name,
			Source: source,
			Target: t,
		})
	}

	return regs, closeAll, nil
}
