/**
 * @description
 * This file defines the request/response DTOs for the payment-relay-service's
 * HTTP surface. Using distinct types for API payloads keeps the web layer
 * decoupled from the gateway client's own schemas.
 */

package domain

// QrInitiationRequest is the DTO for requesting a dynamic payment QR.
type QrInitiationRequest struct {
	Amount   string `json:"amount"`
	Remarks1 string `json:"remarks1"`
	Remarks2 string `json:"remarks2"`
}

// QrInitiationResponse is returned once a QR has been generated and live
// monitoring has been scheduled for its PRN.
type QrInitiationResponse struct {
	Success   bool   `json:"success"`
	Reference string `json:"prn"`
	QrMessage string `json:"qrMessage"`
	Message   string `json:"message"`
}

// StatusQueryRequest asks for a synchronous status snapshot, used as a
// fallback when no live monitoring session exists for the reference.
type StatusQueryRequest struct {
	Reference string `json:"prn"`
}

// StatusQueryResponse carries the snapshot returned by the provider.
type StatusQueryResponse struct {
	Success       bool   `json:"success"`
	Reference     string `json:"prn"`
	PaymentStatus string `json:"paymentStatus"`
	TraceID       string `json:"traceId,omitempty"`
}

// StopMonitoringRequest asks the registry to cancel the live session for a PRN.
type StopMonitoringRequest struct {
	Reference string `json:"prn"`
}
