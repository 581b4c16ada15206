package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema holds the definition tables when no schema is configured.
const DefaultSchema = "proscore"

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidSchema reports whether name is usable as an unquoted schema name.
func ValidSchema(name string) bool {
	return schemaPattern.MatchString(name)
}

// quoteSchema returns the sanitized identifier for schema.
func quoteSchema(schema string) string {
	return pgx.Identifier{schema}.Sanitize()
}

// EnsureSchema creates schema if needed and applies every embedded
// migration to it. It returns the number of migrations applied.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schema string) (int, error) {
	if !ValidSchema(schema) {
		return 0, fmt.Errorf("invalid schema name: %s", schema)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	_, err = conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteSchema(schema))
	conn.Release()
	if err != nil {
		return 0, fmt.Errorf("create schema %s: %w", schema, err)
	}

	n, err := NewMigrator(pool, EmbeddedMigrations()).Up(ctx, schema)
	if err != nil {
		return n, fmt.Errorf("run migrations for %s: %w", schema, err)
	}
	return n, nil
}
