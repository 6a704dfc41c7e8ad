/**
 * @description
 * This file implements the event normalizer: the single mapping from raw
 * monitoring events to the canonical StatusMessage pushed to clients. The
 * mapping is total and deterministic; every event kind produces exactly one
 * eventType/status pair, and the status string drives client behavior.
 */

package app

import (
	"github.com/qrpaylink/payment-relay-service/internal/domain"
)

// Normalize converts a monitoring event into the canonical status message.
// It is a pure function: no I/O, no mutation of the input.
func Normalize(evt domain.StatusEvent) domain.StatusMessage {
	msg := domain.StatusMessage{
		Reference: evt.Reference,
		Timestamp: evt.Timestamp,
	}

	switch evt.Kind {
	case domain.EventConnected:
		msg.EventType = "WEBSOCKET_CONNECTED"
		msg.Status = "websocket_connected"
		msg.Fields = []domain.Field{
			{Key: "message", Value: "Live status stream connected"},
		}

	case domain.EventStatusChanged:
		msg.Status = evt.Status
		switch evt.Status {
		case "qr_verified":
			msg.EventType = "QR_VERIFIED"
		case "payment_success":
			msg.EventType = "PAYMENT_SUCCESS"
		case "payment_failed":
			msg.EventType = "PAYMENT_FAILED"
		default:
			msg.EventType = "STATUS_UPDATE"
		}
		msg.Fields = []domain.Field{
			{Key: "qrVerified", Value: evt.QrVerified},
			{Key: "paymentSuccess", Value: evt.PaymentSuccess},
		}
		if len(evt.RawPayload) > 0 {
			msg.Fields = append(msg.Fields, domain.Field{Key: "rawMessage", Value: string(evt.RawPayload)})
		}

	case domain.EventVerified:
		if evt.Success {
			msg.EventType = "PAYMENT_VERIFIED"
			msg.Status = "verified_success"
			msg.Fields = []domain.Field{
				{Key: "message", Value: "Payment completed and verified successfully"},
			}
			if len(evt.VerificationPayload) > 0 {
				msg.Fields = append(msg.Fields, domain.Field{Key: "verificationData", Value: string(evt.VerificationPayload)})
			}
		} else {
			msg.EventType = "VERIFICATION_FAILED"
			msg.Status = "verification_failed"
			reason := evt.ErrorMessage
			if reason == "" {
				reason = "Payment verification failed"
			}
			msg.Fields = []domain.Field{
				{Key: "message", Value: reason},
			}
		}

	case domain.EventTimeout:
		msg.EventType = "PAYMENT_TIMEOUT"
		msg.Status = "timeout"
		msg.Fields = []domain.Field{
			{Key: "message", Value: "Payment monitoring timed out"},
		}

	case domain.EventError:
		msg.EventType = "WEBSOCKET_ERROR"
		msg.Status = "error"
		msg.Fields = []domain.Field{
			{Key: "message", Value: evt.ErrorMessage},
		}

	case domain.EventCancelled:
		msg.EventType = "PAYMENT_CANCELLED"
		msg.Status = "cancelled"
		msg.Fields = []domain.Field{
			{Key: "message", Value: evt.Reason},
			{Key: "cancelledBy", Value: evt.CancelledBy},
		}

	default:
		msg.EventType = "STATUS_UPDATE"
		msg.Status = string(evt.Kind)
	}

	return msg
}

// auditWorthy is the single policy deciding which events get a durable audit
// record. Only verification outcomes are persisted; other terminal kinds are
// observable through logs and the published terminal event stream.
func auditWorthy(evt domain.StatusEvent) bool {
	return evt.Kind == domain.EventVerified
}
