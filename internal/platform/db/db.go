// Package db owns the SQL connection, the query dialect and the unit of work
// shared by every store.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"libradesk/internal/apperr"
)

const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// Config describes how to reach the database.
type Config struct {
	Driver       string
	URL          string
	MaxOpenConns int
}

// DB is a connection pool paired with the SQL dialect its driver speaks.
type DB struct {
	*sqlx.DB
	Builder Builder
}

// Querier is satisfied by both *DB and *Tx.
type Querier interface {
	sqlx.ExtContext
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect, dsn, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, apperr.Transient("open database", err)
	}

	if cfg.Driver == DriverSQLite {
		// sqlite allows a single writer; one connection serializes transactions.
		conn.SetMaxOpenConns(1)
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 20
		}
		conn.SetMaxOpenConns(maxOpen)
		conn.SetMaxIdleConns(maxOpen / 2)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, apperr.Transient("ping database", err)
	}

	return &DB{DB: conn, Builder: Builder{dialect: goqu.Dialect(dialect)}}, nil
}

func resolve(cfg Config) (dialect, dsn string, err error) {
	switch cfg.Driver {
	case DriverPostgres, DriverPgx:
		return "postgres", cfg.URL, nil
	case DriverSQLite:
		return "sqlite3", sqliteDSN(cfg.URL), nil
	default:
		return "", "", apperr.Config("unsupported database driver %q", cfg.Driver)
	}
}

func sqliteDSN(url string) string {
	if !strings.HasPrefix(url, "file:") {
		url = "file:" + url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// IsSQLite reports whether the pool talks to sqlite.
func (d *DB) IsSQLite() bool {
	return d.DriverName() == DriverSQLite
}

// Builder produces prepared (placeholder) statements in the pool's dialect.
type Builder struct {
	dialect goqu.DialectWrapper
}

// NewBuilder returns a builder for a goqu dialect name ("postgres", "sqlite3").
func NewBuilder(dialect string) Builder {
	return Builder{dialect: goqu.Dialect(dialect)}
}

func (b Builder) From(table ...any) *goqu.SelectDataset {
	return b.dialect.From(table...).Prepared(true)
}

func (b Builder) Insert(table any) *goqu.InsertDataset {
	return b.dialect.Insert(table).Prepared(true)
}

func (b Builder) Update(table any) *goqu.UpdateDataset {
	return b.dialect.Update(table).Prepared(true)
}

// Statement is any goqu dataset that renders to SQL.
type Statement interface {
	ToSQL() (string, []any, error)
}

// Get runs stmt and scans the single resulting row into dest.
// sql.ErrNoRows is returned unchanged.
func Get(ctx context.Context, q Querier, dest any, stmt Statement) error {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

// Select runs stmt and scans every row into dest, which must be a slice pointer.
func Select(ctx context.Context, q Querier, dest any, stmt Statement) error {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// Exec runs stmt and returns the number of affected rows.
func Exec(ctx context.Context, q Querier, stmt Statement) (int64, error) {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Timestamp normalizes t for storage: UTC with second precision, so the
// textual sqlite encoding orders the same way as the time values do.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
