/**
 * @description
 * This file sets up the HTTP router for the payment-relay-service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, timeouts, and CORS.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 * - github.com/prometheus/client_golang: The /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PaymentRoutes creates and returns the router for the payment relay.
// wsHandler serves the subscriber websocket endpoint; it bypasses the request
// timeout middleware because subscriber connections are long-lived.
func PaymentRoutes(h *PaymentHandlers, wsHandler http.HandlerFunc, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/payments/ws", wsHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/payments/qr", h.InitiateQrHandler)
		r.Post("/payments/status", h.StatusHandler)
		r.Post("/payments/monitoring/stop", h.StopMonitoringHandler)
	})

	return r
}
