/**
 * @description
 * This file defines the `AuditRepository` interface, the contract for durably
 * recording audit-worthy payment status messages. Keeping the interface in the
 * store package decouples the relay from the PostgreSQL implementation and
 * lets tests substitute in-memory stubs.
 */

package store

import (
	"context"

	"github.com/qrpaylink/payment-relay-service/internal/domain"
)

// AuditRepository is the append-only persistence contract for audit records.
// There is no read, update, or delete path in this service.
type AuditRepository interface {
	InsertAuditRecord(ctx context.Context, record *domain.AuditRecord) error
}
