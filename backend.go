package relate

import (
	"context"
	"database/sql"
	"time"

	// Drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Backend is the execution collaborator the engine hands compiled
// statements to. Calls are synchronous; the engine imposes no scheduling or
// pooling of its own and never interprets a backend failure beyond wrapping
// it as *BackendError.
type Backend interface {
	// Execute runs a row-returning statement.
	Execute(ctx context.Context, query string, args []any) ([]Row, error)

	// ExecuteScalar runs a single-value statement, such as a count or an
	// insert carrying a RETURNING clause.
	ExecuteScalar(ctx context.Context, query string, args []any) (int64, error)

	// ExecuteCommand runs a non-returning statement and reports the number
	// of affected rows.
	ExecuteCommand(ctx context.Context, query string, args []any) (int64, error)

	// ExecuteInsert runs an INSERT and reports the generated key.
	ExecuteInsert(ctx context.Context, query string, args []any) (int64, error)
}

// SQLBackend adapts a *sql.DB connection pool to the Backend interface.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend wraps an open connection pool.
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Execute(ctx context.Context, query string, args []any) ([]Row, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapBackendError(query, args, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapBackendError(query, args, err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		holders := make([]any, len(columns))
		for i := range values {
			holders[i] = &values[i]
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, wrapBackendError(query, args, err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapBackendError(query, args, err)
	}

	return out, nil
}

func (b *SQLBackend) ExecuteScalar(ctx context.Context, query string, args []any) (int64, error) {
	var n int64
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrapBackendError(query, args, err)
	}
	return n, nil
}

func (b *SQLBackend) ExecuteCommand(ctx context.Context, query string, args []any) (int64, error) {
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapBackendError(query, args, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapBackendError(query, args, err)
	}
	return affected, nil
}

func (b *SQLBackend) ExecuteInsert(ctx context.Context, query string, args []any) (int64, error) {
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapBackendError(query, args, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapBackendError(query, args, err)
	}
	return id, nil
}

// PoolConfig configures the connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ConfigurePool applies pool settings, leaving zero values untouched.
func ConfigurePool(db *sql.DB, config PoolConfig) {
	if db == nil {
		return
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}
}

// Connect opens a connection pool for the dialect's driver and verifies it.
func Connect(dialect *Dialect, dsn string, config *PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if config != nil {
		ConfigurePool(db, *config)
	}

	return db, nil
}
