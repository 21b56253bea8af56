// SPDX-License-Identifier: Apache-2.0

package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/db"
	"github.com/cloudgames/schemaboot/pkg/migrations"
	"github.com/cloudgames/schemaboot/pkg/state"
)

var _ bootstrap.Target = (*SQLite)(nil)

const memoryPath = ":memory:"

// SQLite is a logical database stored in a single sqlite file. The file is
// created exclusively, so concurrent creators observe each other.
type SQLite struct {
	path  string
	conn  *sql.DB
	state *state.State
}

// NewSQLite returns a target for the sqlite database at path. A path of
// ":memory:" is an in-memory database that always exists.
func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	o := newOptions(opts)

	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" {
		return nil, db.Mark(db.ClassFatal, errors.New("sqlite target requires a path"))
	}

	dsn := path
	if o.lockTimeoutMs > 0 {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, o.lockTimeoutMs)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}
	if path == memoryPath {
		// every connection would see its own empty database
		conn.SetMaxOpenConns(1)
	}

	return &SQLite{
		path:  path,
		conn:  conn,
		state: state.New(&db.RDB{DB: conn}, state.DialectSQLite, state.WithTable(o.historyTable)),
	}, nil
}

func (s *SQLite) Exists(ctx context.Context) (bool, error) {
	if s.path == memoryPath {
		return true, nil
	}

	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case errors.Is(err, os.ErrPermission):
		return false, db.Mark(db.ClassFatal, err)
	default:
		return false, db.Mark(db.ClassConnectivity, err)
	}
}

// Create creates an empty database file. It fails with an error classified
// db.ClassAlreadyExists if the file is already there.
func (s *SQLite) Create(ctx context.Context) error {
	if s.path == memoryPath {
		return db.Mark(db.ClassAlreadyExists, errors.New("in-memory database always exists"))
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return classifyFSError(err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return classifyFSError(err)
	}
	return f.Close()
}

func (s *SQLite) InitHistory(ctx context.Context) error {
	return s.state.Init(ctx)
}

func (s *SQLite) Applied(ctx context.Context) ([]string, error) {
	return applied(ctx, s.state)
}

func (s *SQLite) Apply(ctx context.Context, unit migrations.Unit, position int) error {
	return s.state.Apply(ctx, unit, position)
}

func (s *SQLite) Close() error {
	return s.state.Close()
}

func classifyFSError(err error) error {
	switch {
	case errors.Is(err, os.ErrExist):
		return db.Mark(db.ClassAlreadyExists, err)
	case errors.Is(err, os.ErrPermission):
		return db.Mark(db.ClassFatal, err)
	default:
		return db.Mark(db.ClassConnectivity, err)
	}
}
