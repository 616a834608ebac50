// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable store: identity records and audit log.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and returns a verified connection pool
// to PostgreSQL wrapped in a store.
// Call once at startup from main.go...the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertIdentityRecord appends one identity record. There is no update path:
// a duplicate ID surfaces as a raw pgx unique-violation error.
func (s *PostgresStore) InsertIdentityRecord(ctx context.Context, rec IdentityRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identity_records
			(id, provider, digilocker_id, name, dob, gender, user_role, token_type, expires_in, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.Provider, rec.DigiLockerID, rec.Name, rec.DOB, rec.Gender,
		rec.UserRole, rec.TokenType, rec.ExpiresIn, rec.Payload, rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting identity record: %w", err)
	}
	return nil
}

// WriteAuditLog inserts one audit_logs row.
func (s *PostgresStore) WriteAuditLog(ctx context.Context, e AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO audit_logs (action, request_id, ip_address, user_agent, metadata) VALUES ($1, $2, $3, $4, $5)",
		e.Action, e.RequestID, e.IPAddress, e.UserAgent, e.Metadata,
	)
	if err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}
