// Package store implements the tenant-database persistence layer: the
// ingest_artifact table, the per-tenant config k/v table, and the
// transactional plumbing the credential-refresh advisory lock rides on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BaseStore provides common PostgreSQL operations embedded by the
// artifact and config stores, to reduce boilerplate across tenant
// databases.
type BaseStore struct {
	db        *sql.DB
	tableName string
}

// NewBaseStore creates a BaseStore for the given table.
func NewBaseStore(db *sql.DB, tableName string) *BaseStore {
	return &BaseStore{db: db, tableName: tableName}
}

func (s *BaseStore) DB() *sql.DB        { return s.db }
func (s *BaseStore) TableName() string  { return s.tableName }

// Querier returns the transaction in context if present, else the pool.
func (s *BaseStore) Querier(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

type txKey struct{}

// TxFromContext extracts a transaction from context.
func TxFromContext(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// ContextWithTx attaches a transaction to the context.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// BeginTx starts a new transaction, the entry point for the credential
// refresh critical section in §4.2: the advisory lock and the expiry
// re-read both happen inside the transaction this returns.
func (s *BaseStore) BeginTx(ctx context.Context) (context.Context, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, fmt.Errorf("begin transaction: %w", err)
	}
	return ContextWithTx(ctx, tx), nil
}

func (s *BaseStore) CommitTx(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}
	return tx.Commit()
}

func (s *BaseStore) RollbackTx(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *BaseStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = s.RollbackTx(txCtx)
		return err
	}
	return s.CommitTx(txCtx)
}

func (s *BaseStore) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.Querier(ctx).ExecContext(ctx, query, args...)
}

func (s *BaseStore) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.Querier(ctx).QueryContext(ctx, query, args...)
}

func (s *BaseStore) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.Querier(ctx).QueryRowContext(ctx, query, args...)
}

// AdvisoryLock acquires a transaction-scoped Postgres advisory lock keyed
// by a hashed string, the mechanism behind the per-tenant credential
// refresh critical section (§4.2: pg_advisory_xact_lock(hash(...))).
// Must be called with a context carrying a transaction (see WithTx); the
// lock releases automatically at transaction end.
func (s *BaseStore) AdvisoryLock(ctx context.Context, key string) error {
	_, err := s.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key)
	if err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}

// SelectBuilder helps build parameterized SELECT queries.
type SelectBuilder struct {
	table      string
	columns    []string
	conditions []string
	args       []any
	orderBy    []string
	limit      int
	offset     int
	argIndex   int
}

func NewSelectBuilder(table string) *SelectBuilder {
	return &SelectBuilder{table: table, argIndex: 1}
}

func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

func (b *SelectBuilder) WhereEq(column string, value any) *SelectBuilder {
	b.conditions = append(b.conditions, fmt.Sprintf("%s = $%d", column, b.argIndex))
	b.args = append(b.args, value)
	b.argIndex++
	return b
}

func (b *SelectBuilder) WhereIn(column string, values []any) *SelectBuilder {
	if len(values) == 0 {
		b.conditions = append(b.conditions, "1 = 0")
		return b
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", b.argIndex)
		b.args = append(b.args, v)
		b.argIndex++
	}
	b.conditions = append(b.conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return b
}

func (b *SelectBuilder) OrderBy(column string, desc bool) *SelectBuilder {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	b.orderBy = append(b.orderBy, fmt.Sprintf("%s %s", column, order))
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder  { b.limit = n; return b }
func (b *SelectBuilder) Offset(n int) *SelectBuilder { b.offset = n; return b }

func (b *SelectBuilder) Build() (string, []any) {
	cols := "*"
	if len(b.columns) > 0 {
		cols = strings.Join(b.columns, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s", cols, b.table)
	if len(b.conditions) > 0 {
		query += " WHERE " + strings.Join(b.conditions, " AND ")
	}
	if len(b.orderBy) > 0 {
		query += " ORDER BY " + strings.Join(b.orderBy, ", ")
	}
	if b.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", b.limit)
	}
	if b.offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", b.offset)
	}
	return query, b.args
}

func NullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func PtrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func NullStringToPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func PtrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
