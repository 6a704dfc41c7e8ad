/**
 * @description
 * This file provides the PostgreSQL implementation of the `AuditRepository`
 * interface. Audit records land in the `payment_audit_records` table:
 *
 *   CREATE TABLE payment_audit_records (
 *       id            BIGSERIAL PRIMARY KEY,
 *       prn           TEXT        NOT NULL,
 *       event_payload JSONB       NOT NULL,
 *       recorded_at   TIMESTAMPTZ NOT NULL
 *   );
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pooling.
 * - internal/domain: The AuditRecord model.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qrpaylink/payment-relay-service/internal/domain"
)

var ErrAuditStoreUnavailable = errors.New("audit store unavailable")

// PostgresAuditRepository is a concrete implementation of AuditRepository for PostgreSQL.
type PostgresAuditRepository struct {
	db *pgxpool.Pool
}

// NewPostgresAuditRepository creates a new instance of PostgresAuditRepository.
func NewPostgresAuditRepository(db *pgxpool.Pool) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

// InsertAuditRecord appends one audit record. Each call acquires its own
// connection from the pool; a pool connection is not safe for concurrent use,
// and concurrent events must never share a storage handle.
func (r *PostgresAuditRepository) InsertAuditRecord(ctx context.Context, record *domain.AuditRecord) error {
	if r.db == nil {
		return ErrAuditStoreUnavailable
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	query := `INSERT INTO payment_audit_records (prn, event_payload, recorded_at) VALUES ($1, $2, $3)`
	if _, err := conn.Exec(ctx, query, record.Reference, record.SerializedEvent, record.RecordedAt); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
