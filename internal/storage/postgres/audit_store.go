// Package postgres provides the Postgres-backed audit record store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/site-auditor/internal/audit"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool used for audit rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// AuditStore persists audits as rows with the report in a JSONB column.
// Status writes are guarded in SQL so a row can only move forward.
type AuditStore struct {
	pool  pool
	table string
}

// NewAuditStore connects to Postgres using cfg.
func NewAuditStore(ctx context.Context, cfg Config) (*AuditStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewAuditStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewAuditStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAuditStoreWithPool(p pool, table string) (*AuditStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "audits"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &AuditStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *AuditStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *AuditStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the audit table when it does not exist.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	target_url  TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	score       INTEGER,
	options     JSONB NOT NULL DEFAULT '{}'::jsonb,
	report      JSONB,
	error       JSONB
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// CreateAudit inserts a new audit row.
func (s *AuditStore) CreateAudit(ctx context.Context, a audit.Audit) error {
	if a.ID == "" {
		return fmt.Errorf("audit id is required")
	}
	options, report, failure, err := encodeColumns(a)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	target_url,
	status,
	created_at,
	updated_at,
	score,
	options,
	report,
	error
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)

	args := []any{
		a.ID,
		a.TargetURL,
		string(a.Status),
		a.CreatedAt,
		a.UpdatedAt,
		a.Score,
		options,
		report,
		failure,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", audit.ErrAlreadyExists, a.ID)
		}
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// UpdateAudit overwrites the mutable columns when the stored status may move
// to a.Status.
func (s *AuditStore) UpdateAudit(ctx context.Context, a audit.Audit) error {
	options, report, failure, err := encodeColumns(a)
	if err != nil {
		return err
	}
	predecessors := audit.Predecessors(a.Status)
	allowed := make([]string, 0, len(predecessors))
	for _, st := range predecessors {
		allowed = append(allowed, string(st))
	}

	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	updated_at = $3,
	score = $4,
	options = $5,
	report = $6,
	error = $7
WHERE id = $1 AND status = ANY($8)`, s.table)

	tag, err := s.pool.Exec(ctx, query, a.ID, string(a.Status), a.UpdatedAt, a.Score, options, report, failure, allowed)
	if err != nil {
		return fmt.Errorf("update audit: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, s.table), a.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", audit.ErrNotFound, a.ID)
	}
	if err != nil {
		return fmt.Errorf("read audit status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", audit.ErrInvalidTransition, current, a.Status)
}

// GetAudit fetches an audit by ID.
func (s *AuditStore) GetAudit(ctx context.Context, id string) (audit.Audit, error) {
	query := fmt.Sprintf(`
SELECT id, target_url, status, created_at, updated_at, score, options, report, error
FROM %s
WHERE id = $1`, s.table)

	var (
		a                        audit.Audit
		status                   string
		score                    *int
		options, report, failure []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.TargetURL,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&score,
		&options,
		&report,
		&failure,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Audit{}, fmt.Errorf("%w: %s", audit.ErrNotFound, id)
	}
	if err != nil {
		return audit.Audit{}, fmt.Errorf("get audit: %w", err)
	}
	a.Status = audit.Status(status)
	a.Score = score
	if len(options) > 0 {
		if err := json.Unmarshal(options, &a.Options); err != nil {
			return audit.Audit{}, fmt.Errorf("decode options: %w", err)
		}
	}
	if len(report) > 0 {
		a.Report = &audit.Report{}
		if err := json.Unmarshal(report, a.Report); err != nil {
			return audit.Audit{}, fmt.Errorf("decode report: %w", err)
		}
	}
	if len(failure) > 0 {
		a.Error = &audit.FailureInfo{}
		if err := json.Unmarshal(failure, a.Error); err != nil {
			return audit.Audit{}, fmt.Errorf("decode error: %w", err)
		}
	}
	return a, nil
}

// DeleteAudit removes an audit row.
func (s *AuditStore) DeleteAudit(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return fmt.Errorf("delete audit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", audit.ErrNotFound, id)
	}
	return nil
}

func encodeColumns(a audit.Audit) (options, report, failure []byte, err error) {
	if options, err = json.Marshal(a.Options); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal options: %w", err)
	}
	if a.Report != nil {
		if report, err = json.Marshal(a.Report); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal report: %w", err)
		}
	}
	if a.Error != nil {
		if failure, err = json.Marshal(a.Error); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal error: %w", err)
		}
	}
	return options, report, failure, nil
}
