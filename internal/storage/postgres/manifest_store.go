// Package postgres provides a Postgres-backed manifest of written CSV files.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/aqsharvest/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds one row per written file.
const DefaultTable = "aqs_files"

// ManifestStoreConfig controls the Postgres connection pool used for manifest rows.
type ManifestStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// ManifestStore writes file records into Postgres.
type ManifestStore struct {
	pool  execCloser
	table string
}

// NewManifestStore creates a Postgres-backed ManifestStore using the provided config.
func NewManifestStore(ctx context.Context, cfg ManifestStoreConfig) (*ManifestStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ManifestStore{pool: pool, table: table}, nil
}

// NewManifestStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewManifestStoreWithPool(pool execCloser, table string) (*ManifestStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ManifestStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ManifestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *ManifestStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the manifest table when it does not exist.
func (s *ManifestStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id             UUID PRIMARY KEY,
	run_id         UUID NOT NULL,
	profile        TEXT NOT NULL,
	class          TEXT NOT NULL,
	parameter      TEXT NOT NULL,
	parameter_code TEXT NOT NULL,
	state_code     TEXT NOT NULL,
	county_code    TEXT NOT NULL,
	county         TEXT NOT NULL,
	period         TEXT NOT NULL,
	bdate          TEXT NOT NULL,
	edate          TEXT NOT NULL,
	rows           INTEGER NOT NULL,
	columns        JSONB NOT NULL,
	uri            TEXT NOT NULL,
	written_at     TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create manifest table: %w", err)
	}
	return nil
}

// RecordFile inserts a file row into Postgres.
func (s *ManifestStore) RecordFile(ctx context.Context, rec harvest.FileRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	if rec.ID == "" || rec.RunID == "" {
		return fmt.Errorf("record id and run id are required")
	}
	columns := rec.Columns
	if columns == nil {
		columns = []string{}
	}
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	profile,
	class,
	parameter,
	parameter_code,
	state_code,
	county_code,
	county,
	period,
	bdate,
	edate,
	rows,
	columns,
	uri,
	written_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)`, s.table)

	args := []any{
		rec.ID,
		rec.RunID,
		rec.Profile,
		rec.Group,
		rec.Parameter,
		rec.ParameterCode,
		rec.State,
		rec.CountyCode,
		rec.County,
		rec.Period,
		rec.BDate,
		rec.EDate,
		rec.Rows,
		columnsJSON,
		rec.URI,
		rec.WrittenAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert manifest row: %w", err)
	}
	return nil
}
