package app

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/qrpaylink/payment-relay-service/internal/domain"
)

func TestNormalize_MappingTable(t *testing.T) {
	tests := []struct {
		name          string
		event         domain.StatusEvent
		wantEventType string
		wantStatus    string
	}{
		{
			name:          "Connected",
			event:         domain.StatusEvent{Kind: domain.EventConnected},
			wantEventType: "WEBSOCKET_CONNECTED",
			wantStatus:    "websocket_connected",
		},
		{
			name:          "StatusChangedQrVerified",
			event:         domain.StatusEvent{Kind: domain.EventStatusChanged, Status: "qr_verified", QrVerified: true},
			wantEventType: "QR_VERIFIED",
			wantStatus:    "qr_verified",
		},
		{
			name:          "StatusChangedPaymentSuccess",
			event:         domain.StatusEvent{Kind: domain.EventStatusChanged, Status: "payment_success", PaymentSuccess: true},
			wantEventType: "PAYMENT_SUCCESS",
			wantStatus:    "payment_success",
		},
		{
			name:          "StatusChangedPaymentFailed",
			event:         domain.StatusEvent{Kind: domain.EventStatusChanged, Status: "payment_failed"},
			wantEventType: "PAYMENT_FAILED",
			wantStatus:    "payment_failed",
		},
		{
			name:          "StatusChangedOtherPassesRawStatusThrough",
			event:         domain.StatusEvent{Kind: domain.EventStatusChanged, Status: "awaiting_scan"},
			wantEventType: "STATUS_UPDATE",
			wantStatus:    "awaiting_scan",
		},
		{
			name:          "VerifiedSuccess",
			event:         domain.StatusEvent{Kind: domain.EventVerified, Success: true},
			wantEventType: "PAYMENT_VERIFIED",
			wantStatus:    "verified_success",
		},
		{
			name:          "VerifiedFailure",
			event:         domain.StatusEvent{Kind: domain.EventVerified, Success: false, ErrorMessage: "amount mismatch"},
			wantEventType: "VERIFICATION_FAILED",
			wantStatus:    "verification_failed",
		},
		{
			name:          "Timeout",
			event:         domain.StatusEvent{Kind: domain.EventTimeout},
			wantEventType: "PAYMENT_TIMEOUT",
			wantStatus:    "timeout",
		},
		{
			name:          "Error",
			event:         domain.StatusEvent{Kind: domain.EventError, ErrorMessage: "stream closed"},
			wantEventType: "WEBSOCKET_ERROR",
			wantStatus:    "error",
		},
		{
			name:          "Cancelled",
			event:         domain.StatusEvent{Kind: domain.EventCancelled, Reason: "merchant stopped", CancelledBy: "merchant"},
			wantEventType: "PAYMENT_CANCELLED",
			wantStatus:    "cancelled",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.event.Reference = "prn-1"
			tc.event.Timestamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

			msg := Normalize(tc.event)
			if msg.EventType != tc.wantEventType {
				t.Errorf("eventType: expected %q, got %q", tc.wantEventType, msg.EventType)
			}
			if msg.Status != tc.wantStatus {
				t.Errorf("status: expected %q, got %q", tc.wantStatus, msg.Status)
			}
			if msg.Reference != "prn-1" {
				t.Errorf("reference: expected prn-1, got %q", msg.Reference)
			}
			if !msg.Timestamp.Equal(tc.event.Timestamp) {
				t.Errorf("timestamp not carried through: got %v", msg.Timestamp)
			}
		})
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	event := domain.StatusEvent{
		Kind:           domain.EventStatusChanged,
		Reference:      "prn-7",
		Timestamp:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Status:         "qr_verified",
		QrVerified:     true,
		PaymentSuccess: false,
		RawPayload:     json.RawMessage(`{"qrVerified":true}`),
	}

	first := Normalize(event)
	second := Normalize(event)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical messages, got %+v vs %+v", first, second)
	}
}

func TestNormalize_VerifiedFailureFallbackMessage(t *testing.T) {
	msg := Normalize(domain.StatusEvent{Kind: domain.EventVerified, Reference: "prn-2"})
	if len(msg.Fields) == 0 {
		t.Fatal("expected a message field")
	}
	if msg.Fields[0].Key != "message" || msg.Fields[0].Value != "Payment verification failed" {
		t.Fatalf("expected fallback verification message, got %+v", msg.Fields[0])
	}
}

func TestAuditWorthy_OnlyVerifiedEvents(t *testing.T) {
	kinds := []domain.EventKind{
		domain.EventConnected,
		domain.EventStatusChanged,
		domain.EventVerified,
		domain.EventTimeout,
		domain.EventError,
		domain.EventCancelled,
	}
	for _, kind := range kinds {
		got := auditWorthy(domain.StatusEvent{Kind: kind})
		want := kind == domain.EventVerified
		if got != want {
			t.Errorf("auditWorthy(%s): expected %t, got %t", kind, want, got)
		}
	}
}
