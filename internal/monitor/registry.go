/**
 * @description
 * This package implements the monitoring session registry: it tracks which
 * payment references currently have a live provider status stream, owns
 * cancellation of those sessions, and emits the resulting StatusEvents on a
 * single channel consumed by the relay.
 *
 * At most one session exists per reference. A session self-terminates after
 * emitting a terminal event (Verified, Timeout, Error, Cancelled); no further
 * events are emitted for that reference unless monitoring is restarted.
 */

package monitor

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/qrpaylink/payment-relay-service/internal/domain"
)

var (
	// ErrAlreadyMonitoring is returned when a session for the reference is
	// already starting or active.
	ErrAlreadyMonitoring = errors.New("reference is already being monitored")
	// ErrInvalidTarget is returned when the connection target is empty.
	ErrInvalidTarget = errors.New("connection target must not be empty")
)

// Credentials carries the opaque provider credentials for one session.
// Values are never logged.
type Credentials struct {
	SecretKey    string
	MerchantCode string
	Username     string
	Password     string
	Sandbox      bool
}

// session is the ephemeral record of one live monitoring attempt. It is owned
// exclusively by the registry.
type session struct {
	reference string
	target    string
	creds     Credentials
	cancel    context.CancelFunc
}

// Registry starts, tracks, and cancels monitoring sessions and fans their
// events into one stream.
type Registry struct {
	dialer   StreamDialer
	verifier PaymentVerifier
	timeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*session

	events chan domain.StatusEvent
}

// NewRegistry creates a registry. timeout bounds how long a session waits for
// a terminal status before emitting Timeout.
func NewRegistry(dialer StreamDialer, verifier PaymentVerifier, timeout time.Duration) *Registry {
	return &Registry{
		dialer:   dialer,
		verifier: verifier,
		timeout:  timeout,
		sessions: make(map[string]*session),
		events:   make(chan domain.StatusEvent, 256),
	}
}

// Events is the stream of monitoring events across all references. Per
// reference, events arrive in the order the provider reported them; no order
// is guaranteed across references.
func (r *Registry) Events() <-chan domain.StatusEvent {
	return r.events
}

// StartMonitoring schedules an asynchronous session for the reference. It
// returns once the session is scheduled, not once the stream is connected.
func (r *Registry) StartMonitoring(reference, connectionTarget string, creds Credentials) error {
	if strings.TrimSpace(connectionTarget) == "" {
		return ErrInvalidTarget
	}

	r.mu.Lock()
	if _, exists := r.sessions[reference]; exists {
		r.mu.Unlock()
		return ErrAlreadyMonitoring
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		reference: reference,
		target:    connectionTarget,
		creds:     creds,
		cancel:    cancel,
	}
	r.sessions[reference] = s
	r.mu.Unlock()

	log.Printf("level=info component=monitor msg=\"monitoring scheduled\" prn=%s", reference)
	go r.runSession(ctx, s)
	return nil
}

// StopMonitoring requests cancellation of the reference's session. Stopping a
// reference with no session is a no-op. The session emits a final Cancelled
// event before terminating; events already dispatched are still delivered.
func (r *Registry) StopMonitoring(reference string) error {
	r.mu.Lock()
	s, ok := r.sessions[reference]
	if ok {
		delete(r.sessions, reference)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	s.cancel()
	log.Printf("level=info component=monitor msg=\"monitoring stop requested\" prn=%s", reference)
	return nil
}

// IsMonitoring reports whether a session exists for the reference.
func (r *Registry) IsMonitoring(reference string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[reference]
	return ok
}

// remove drops the session from the registry if it is still the current one
// for its reference. Safe to call more than once.
func (r *Registry) remove(s *session) {
	r.mu.Lock()
	if current, ok := r.sessions[s.reference]; ok && current == s {
		delete(r.sessions, s.reference)
	}
	r.mu.Unlock()
}

// runSession owns one reference's stream from dial to terminal event.
func (r *Registry) runSession(ctx context.Context, s *session) {
	defer r.remove(s)
	defer s.cancel()

	conn, err := r.dialer.Dial(ctx, s.target, s.creds)
	if err != nil {
		if ctx.Err() != nil {
			r.emitCancelled(s)
			return
		}
		log.Printf("level=error component=monitor msg=\"stream dial failed\" prn=%s err=%v", s.reference, err)
		r.remove(s)
		r.emit(domain.StatusEvent{
			Kind:         domain.EventError,
			Reference:    s.reference,
			Timestamp:    time.Now().UTC(),
			ErrorMessage: "failed to connect to live status stream",
		})
		return
	}
	defer conn.Close()

	r.emit(domain.StatusEvent{
		Kind:      domain.EventConnected,
		Reference: s.reference,
		Timestamp: time.Now().UTC(),
	})

	frames := make(chan frameResult)
	done := make(chan struct{})
	defer close(done)
	go readFrames(conn, frames, done)

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.emitCancelled(s)
			return

		case <-timer.C:
			r.remove(s)
			r.emit(domain.StatusEvent{
				Kind:      domain.EventTimeout,
				Reference: s.reference,
				Timestamp: time.Now().UTC(),
			})
			return

		case fr := <-frames:
			if fr.err != nil {
				if ctx.Err() != nil {
					r.emitCancelled(s)
					return
				}
				log.Printf("level=error component=monitor msg=\"stream read failed\" prn=%s err=%v", s.reference, fr.err)
				r.remove(s)
				r.emit(domain.StatusEvent{
					Kind:         domain.EventError,
					Reference:    s.reference,
					Timestamp:    time.Now().UTC(),
					ErrorMessage: fr.err.Error(),
				})
				return
			}
			if terminal := r.handleFrame(ctx, s, fr.payload); terminal {
				return
			}
		}
	}
}

// handleFrame translates one provider frame into status events. A
// payment_success frame triggers verification and ends the session.
func (r *Registry) handleFrame(ctx context.Context, s *session, payload []byte) bool {
	if ctx.Err() != nil {
		r.emitCancelled(s)
		return true
	}

	status, qrVerified, paymentSuccess := parseProviderFrame(payload)
	r.emit(domain.StatusEvent{
		Kind:           domain.EventStatusChanged,
		Reference:      s.reference,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		QrVerified:     qrVerified,
		PaymentSuccess: paymentSuccess,
		RawPayload:     payload,
	})

	if !paymentSuccess {
		return false
	}

	// The provider reported success; confirm through the verification API
	// before declaring a terminal outcome.
	success, verification, errMsg, err := r.verifier.VerifyPayment(ctx, s.reference)
	if err != nil {
		success = false
		if errMsg == "" {
			errMsg = err.Error()
		}
	}
	r.remove(s)
	r.emit(domain.StatusEvent{
		Kind:                domain.EventVerified,
		Reference:           s.reference,
		Timestamp:           time.Now().UTC(),
		Success:             success,
		VerificationPayload: verification,
		ErrorMessage:        errMsg,
	})
	return true
}

func (r *Registry) emitCancelled(s *session) {
	r.remove(s)
	r.emit(domain.StatusEvent{
		Kind:        domain.EventCancelled,
		Reference:   s.reference,
		Timestamp:   time.Now().UTC(),
		Reason:      "monitoring stopped",
		CancelledBy: "merchant",
	})
}

func (r *Registry) emit(evt domain.StatusEvent) {
	r.events <- evt
}
