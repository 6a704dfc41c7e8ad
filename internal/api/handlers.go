/**
 * @description
 * This file contains the HTTP handlers for the payment-relay-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the gateway client and the monitoring registry, and writing the HTTP
 * response. They act as the bridge between the web layer and the relay core.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/domain, internal/monitor, pkg/gatewayclient: Models, registry contract, provider client.
 */

package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qrpaylink/payment-relay-service/internal/domain"
	"github.com/qrpaylink/payment-relay-service/internal/monitor"
	"github.com/qrpaylink/payment-relay-service/pkg/gatewayclient"
)

// QrGateway is the slice of the provider client the handlers use.
type QrGateway interface {
	CreateDynamicQr(ctx context.Context, req gatewayclient.QrRequest) (*gatewayclient.QrResponse, error)
	CheckQrStatus(ctx context.Context, prn string) (*gatewayclient.QrStatusResponse, error)
}

// PaymentMonitor is the registry contract the handlers depend on.
type PaymentMonitor interface {
	StartMonitoring(reference, connectionTarget string, creds monitor.Credentials) error
	StopMonitoring(reference string) error
}

// QrRateLimiter counts QR initiation attempts per subject. A nil limiter
// disables limiting.
type QrRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error)
}

// PaymentHandlers holds the collaborators the handlers will use.
type PaymentHandlers struct {
	gateway     QrGateway
	monitor     PaymentMonitor
	limiter     QrRateLimiter
	credentials monitor.Credentials
	qrRateLimit int
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(gateway QrGateway, mon PaymentMonitor, creds monitor.Credentials) *PaymentHandlers {
	return &PaymentHandlers{
		gateway:     gateway,
		monitor:     mon,
		credentials: creds,
	}
}

// SetRateLimiter configures QR initiation rate limiting. Must be called
// before the router starts serving.
func (h *PaymentHandlers) SetRateLimiter(limiter QrRateLimiter, perMinute int) {
	h.limiter = limiter
	h.qrRateLimit = perMinute
}

// InitiateQrHandler handles requests to generate a dynamic payment QR and
// begin live monitoring of its PRN.
func (h *PaymentHandlers) InitiateQrHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.QrInitiationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=qr_initiate outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Amount) == "" {
		h.writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	if h.limiter != nil && h.qrRateLimit > 0 {
		subject := clientIP(r)
		count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "qr_initiate", subject, h.qrRateLimit, time.Minute)
		if err != nil {
			log.Printf("level=warn component=api endpoint=qr_initiate msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		} else if count > h.qrRateLimit {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many QR requests. Please wait and try again.")
			return
		}
	}

	prn := uuid.NewString()
	qr, err := h.gateway.CreateDynamicQr(r.Context(), gatewayclient.QrRequest{
		Amount:   req.Amount,
		Remarks1: req.Remarks1,
		Remarks2: req.Remarks2,
		Prn:      prn,
	})
	if err != nil {
		log.Printf("level=error component=api endpoint=qr_initiate outcome=error prn=%s err=%v", prn, err)
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if qr.QrMessage == "" {
		message := qr.Message
		if message == "" {
			message = "Failed to generate QR code"
		}
		h.writeError(w, http.StatusBadRequest, message)
		return
	}

	response := domain.QrInitiationResponse{
		Success:   true,
		Reference: prn,
		QrMessage: qr.QrMessage,
		Message:   "QR code generated successfully",
	}

	// A monitoring failure must not void the QR: the client can still poll
	// the status endpoint as a fallback.
	if err := h.monitor.StartMonitoring(prn, qr.ThirdpartyQrWebSocketURL, h.credentials); err != nil {
		log.Printf("level=error component=api endpoint=qr_initiate msg=\"monitoring start failed\" prn=%s err=%v", prn, err)
		response.Message = "QR generated but live monitoring failed"
	}

	log.Printf("level=info component=api endpoint=qr_initiate outcome=accepted prn=%s", prn)
	h.writeJSON(w, http.StatusOK, response)
}

// StatusHandler handles synchronous status queries, the fallback path when no
// live monitoring session exists for a PRN.
func (h *PaymentHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.StatusQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Reference) == "" {
		h.writeError(w, http.StatusBadRequest, "prn is required")
		return
	}

	status, err := h.gateway.CheckQrStatus(r.Context(), req.Reference)
	if err != nil {
		log.Printf("level=error component=api endpoint=qr_status outcome=error prn=%s err=%v", req.Reference, err)
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if !status.Success {
		message := status.Message
		if message == "" {
			message = "Status check failed"
		}
		log.Printf("level=warn component=api endpoint=qr_status outcome=reject prn=%s message=%q", req.Reference, message)
		h.writeError(w, http.StatusBadRequest, message)
		return
	}

	h.writeJSON(w, http.StatusOK, domain.StatusQueryResponse{
		Success:       true,
		Reference:     status.Prn,
		PaymentStatus: status.PaymentStatus,
		TraceID:       strconv.Itoa(status.FonepayTraceID),
	})
}

// StopMonitoringHandler handles requests to cancel live monitoring for a PRN.
// Stopping is idempotent; stopping an unmonitored PRN succeeds as a no-op.
func (h *PaymentHandlers) StopMonitoringHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.StopMonitoringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Reference) == "" {
		h.writeError(w, http.StatusBadRequest, "prn is required")
		return
	}

	if err := h.monitor.StopMonitoring(req.Reference); err != nil {
		log.Printf("level=error component=api endpoint=monitoring_stop outcome=error prn=%s err=%v", req.Reference, err)
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Monitoring stopped",
	})
}

func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// clientIP extracts the caller address, honouring the first X-Forwarded-For
// hop when present.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
