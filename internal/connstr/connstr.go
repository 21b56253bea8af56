// SPDX-License-Identifier: Apache-2.0

package connstr

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var ErrNoDatabase = errors.New("connection string does not name a database")

// AppendSearchPathOption take a Postgres connection string in URL format and
// produces the same connection string with the search_path option set to the
// provided schema.
func AppendSearchPathOption(connStr, schema string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}

	if schema == "" {
		return connStr, nil
	}

	q := u.Query()
	q.Set("options", fmt.Sprintf("-c search_path=%s", schema))
	encodedQuery := q.Encode()

	// Replace '+' with '%20' to ensure proper encoding of spaces within the
	// `options` query parameter.
	encodedQuery = strings.ReplaceAll(encodedQuery, "+", "%20")

	u.RawQuery = encodedQuery

	return u.String(), nil
}

// DatabaseName returns the database named in the path of a Postgres
// connection string in URL format.
func DatabaseName(connStr string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}

	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", ErrNoDatabase
	}
	return name, nil
}

// WithDatabase returns the Postgres connection string in URL format with its
// database replaced by `database`. Credentials and query parameters are kept.
func WithDatabase(connStr, database string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported connection string scheme %q", u.Scheme)
	}

	u.Path = "/" + database
	u.RawPath = ""

	return u.String(), nil
}

// SplitMySQLDSN parses a go-sql-driver DSN and returns the database it names
// together with a DSN for the same server with no default database.
func SplitMySQLDSN(dsn string) (server string, database string, err error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	if cfg.DBName == "" {
		return "", "", ErrNoDatabase
	}

	database = cfg.DBName
	cfg.DBName = ""

	return cfg.FormatDSN(), database, nil
}

// PrepareMySQLDSN returns the DSN with the options schema migrations rely on:
// multi-statement bodies and time.Time scanning.
func PrepareMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql dsn: %w", err)
	}

	cfg.MultiStatements = true
	cfg.ParseTime = true

	return cfg.FormatDSN(), nil
}
