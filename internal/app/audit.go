/**
 * @description
 * This file implements the audit sink: best-effort durable recording of
 * audit-worthy status messages. A failed or slow write must never block or
 * suppress the broadcast for the same event, so callers treat the returned
 * error as advisory and the sink performs no retries.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/qrpaylink/payment-relay-service/internal/domain"
	"github.com/qrpaylink/payment-relay-service/internal/store"
)

// AuditSink records canonical status messages that represent a durable outcome.
type AuditSink interface {
	Record(ctx context.Context, msg domain.StatusMessage) error
}

// StoreAuditSink persists messages through an AuditRepository. The repository
// scopes a fresh storage handle to every call, so concurrent records for
// different references never contend on a shared connection.
type StoreAuditSink struct {
	repo store.AuditRepository
}

// NewStoreAuditSink creates an audit sink backed by the given repository.
func NewStoreAuditSink(repo store.AuditRepository) *StoreAuditSink {
	return &StoreAuditSink{repo: repo}
}

// Record serializes the message envelope and appends it as an audit record.
func (s *StoreAuditSink) Record(ctx context.Context, msg domain.StatusMessage) error {
	payload, err := msg.Envelope()
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	record := &domain.AuditRecord{
		Reference:       msg.Reference,
		SerializedEvent: payload,
		RecordedAt:      time.Now().UTC(),
	}
	return s.repo.InsertAuditRecord(ctx, record)
}
