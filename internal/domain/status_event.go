/**
 * @description
 * This file defines the monitoring event model for the payment-relay-service.
 * A StatusEvent is the tagged union emitted by the monitoring session registry
 * for one payment reference (PRN); the relay consumes these events exactly once
 * and fans the normalized form out to subscribed clients.
 *
 * @notes
 * - The Kind field selects which of the optional payload fields are meaningful.
 *   Consumers must switch on Kind rather than sniffing payload fields.
 * - Events are immutable after creation; the registry never retains a reference
 *   to an emitted event.
 */

package domain

import (
	"encoding/json"
	"time"
)

// EventKind discriminates the StatusEvent union.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventStatusChanged EventKind = "status_changed"
	EventVerified      EventKind = "verified"
	EventTimeout       EventKind = "timeout"
	EventError         EventKind = "error"
	EventCancelled     EventKind = "cancelled"
)

// Terminal reports whether a session emits no further events after this kind.
func (k EventKind) Terminal() bool {
	switch k {
	case EventVerified, EventTimeout, EventError, EventCancelled:
		return true
	}
	return false
}

// StatusEvent is one monitoring observation for a payment reference.
// Reference and Timestamp are always set; the remaining fields are
// populated according to Kind.
type StatusEvent struct {
	Kind      EventKind `json:"kind"`
	Reference string    `json:"prn"`
	Timestamp time.Time `json:"timestamp"`

	// StatusChanged payload.
	Status         string          `json:"status,omitempty"`
	QrVerified     bool            `json:"qr_verified,omitempty"`
	PaymentSuccess bool            `json:"payment_success,omitempty"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`

	// Verified payload.
	Success             bool            `json:"success,omitempty"`
	VerificationPayload json.RawMessage `json:"verification_payload,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`

	// Cancelled payload.
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}
