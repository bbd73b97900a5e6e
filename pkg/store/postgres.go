package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/ragingest/pkg/errors"
)

// Connect opens the pool shared by the Postgres-backed stores. The caller owns
// the pool and closes it on shutdown.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// storeError wraps a driver error as an Infrastructure fault. Connection and
// transaction-conflict failures are retryable; constraint and syntax errors are not.
func storeError(operation string, err error) *errors.PipelineError {
	if pe, ok := errors.As(err); ok {
		return pe
	}
	return errors.Infrastructure(operation, err, retryable(err))
}

func retryable(err error) bool {
	if stderrors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08", "40", "53", "57":
			return true
		}
		return false
	}
	return true
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
