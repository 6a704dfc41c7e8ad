package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qrpaylink/payment-relay-service/internal/domain"
)

// fakeConn is a scripted provider stream. Frames pushed onto the channel are
// returned from ReadMessage; Close unblocks any pending read.
type fakeConn struct {
	frames chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case payload := <-c.frames:
		return payload, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands out one fakeConn per Dial, or fails every dial when err is
// set.
type fakeDialer struct {
	err error

	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, target string, creds Credentials) (StreamConn, error) {
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) lastConn(t *testing.T) *fakeConn {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		t.Fatal("no connection was dialed")
	}
	return d.conns[len(d.conns)-1]
}

type fakeVerifier struct {
	success bool
	payload json.RawMessage
	errMsg  string
	err     error
}

func (v *fakeVerifier) VerifyPayment(ctx context.Context, reference string) (bool, json.RawMessage, string, error) {
	return v.success, v.payload, v.errMsg, v.err
}

func testCreds() Credentials {
	return Credentials{Username: "merchant-001", Password: "opaque", MerchantCode: "MC-1"}
}

func nextEvent(t *testing.T, events <-chan domain.StatusEvent) domain.StatusEvent {
	t.Helper()
	select {
	case evt := <-events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.StatusEvent{}
	}
}

func TestStartMonitoring_EmptyTarget(t *testing.T) {
	r := NewRegistry(&fakeDialer{}, &fakeVerifier{}, time.Minute)
	if err := r.StartMonitoring("prn-1", "  ", testCreds()); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if r.IsMonitoring("prn-1") {
		t.Fatal("rejected start must not register a session")
	}
}

func TestStartMonitoring_DuplicateReference(t *testing.T) {
	dialer := &fakeDialer{}
	r := NewRegistry(dialer, &fakeVerifier{}, time.Minute)

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if evt := nextEvent(t, r.Events()); evt.Kind != domain.EventConnected {
		t.Fatalf("expected connected event, got %s", evt.Kind)
	}

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); !errors.Is(err, ErrAlreadyMonitoring) {
		t.Fatalf("expected ErrAlreadyMonitoring, got %v", err)
	}

	// A different reference is unaffected.
	if err := r.StartMonitoring("prn-2", "wss://stream.example/prn-2", testCreds()); err != nil {
		t.Fatalf("independent reference rejected: %v", err)
	}
}

func TestStopMonitoring_UnknownReferenceIsNoop(t *testing.T) {
	r := NewRegistry(&fakeDialer{}, &fakeVerifier{}, time.Minute)
	if err := r.StopMonitoring("prn-ghost"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestStopMonitoring_EmitsCancelledAndAllowsRestart(t *testing.T) {
	dialer := &fakeDialer{}
	r := NewRegistry(dialer, &fakeVerifier{}, time.Minute)

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if evt := nextEvent(t, r.Events()); evt.Kind != domain.EventConnected {
		t.Fatalf("expected connected event, got %s", evt.Kind)
	}

	if err := r.StopMonitoring("prn-1"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	// The reference is released immediately, before the session's teardown.
	if r.IsMonitoring("prn-1") {
		t.Fatal("session still registered after stop")
	}

	evt := nextEvent(t, r.Events())
	if evt.Kind != domain.EventCancelled {
		t.Fatalf("expected cancelled event, got %s", evt.Kind)
	}
	if evt.Reason != "monitoring stopped" || evt.CancelledBy != "merchant" {
		t.Errorf("unexpected cancellation payload: reason=%q cancelledBy=%q", evt.Reason, evt.CancelledBy)
	}

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("restart after stop failed: %v", err)
	}
	if evt := nextEvent(t, r.Events()); evt.Kind != domain.EventConnected {
		t.Fatalf("expected connected event from restarted session, got %s", evt.Kind)
	}
}

func TestRunSession_SuccessFrameTriggersVerification(t *testing.T) {
	dialer := &fakeDialer{}
	verifier := &fakeVerifier{success: true, payload: json.RawMessage(`{"paymentStatus":"success"}`)}
	r := NewRegistry(dialer, verifier, time.Minute)

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if evt := nextEvent(t, r.Events()); evt.Kind != domain.EventConnected {
		t.Fatalf("expected connected event, got %s", evt.Kind)
	}

	conn := dialer.lastConn(t)
	conn.frames <- []byte(`{"qrVerified":true}`)
	conn.frames <- []byte(`{"qrVerified":true,"paymentSuccess":true}`)

	evt := nextEvent(t, r.Events())
	if evt.Kind != domain.EventStatusChanged || evt.Status != "qr_verified" || !evt.QrVerified {
		t.Fatalf("expected qr_verified status change, got kind=%s status=%s", evt.Kind, evt.Status)
	}

	evt = nextEvent(t, r.Events())
	if evt.Kind != domain.EventStatusChanged || evt.Status != "payment_success" {
		t.Fatalf("expected payment_success status change, got kind=%s status=%s", evt.Kind, evt.Status)
	}

	evt = nextEvent(t, r.Events())
	if evt.Kind != domain.EventVerified || !evt.Success {
		t.Fatalf("expected successful verified event, got kind=%s success=%v", evt.Kind, evt.Success)
	}
	if string(evt.VerificationPayload) != `{"paymentStatus":"success"}` {
		t.Errorf("verification payload not forwarded: %s", evt.VerificationPayload)
	}

	// The session self-terminated; the reference can be monitored again.
	waitForRelease(t, r, "prn-1")
	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("restart after terminal event failed: %v", err)
	}
}

func TestRunSession_VerificationFailure(t *testing.T) {
	dialer := &fakeDialer{}
	verifier := &fakeVerifier{err: errors.New("verification api unreachable")}
	r := NewRegistry(dialer, verifier, time.Minute)

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	nextEvent(t, r.Events()) // connected

	dialer.lastConn(t).frames <- []byte(`{"paymentSuccess":true}`)
	nextEvent(t, r.Events()) // status change

	evt := nextEvent(t, r.Events())
	if evt.Kind != domain.EventVerified || evt.Success {
		t.Fatalf("expected failed verified event, got kind=%s success=%v", evt.Kind, evt.Success)
	}
	if evt.ErrorMessage != "verification api unreachable" {
		t.Errorf("unexpected error message: %q", evt.ErrorMessage)
	}
}

func TestRunSession_Timeout(t *testing.T) {
	dialer := &fakeDialer{}
	r := NewRegistry(dialer, &fakeVerifier{}, 20*time.Millisecond)

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if evt := nextEvent(t, r.Events()); evt.Kind != domain.EventConnected {
		t.Fatalf("expected connected event, got %s", evt.Kind)
	}
	if evt := nextEvent(t, r.Events()); evt.Kind != domain.EventTimeout {
		t.Fatalf("expected timeout event, got %s", evt.Kind)
	}
	waitForRelease(t, r, "prn-1")
}

func TestRunSession_DialFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	r := NewRegistry(dialer, &fakeVerifier{}, time.Minute)

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	evt := nextEvent(t, r.Events())
	if evt.Kind != domain.EventError {
		t.Fatalf("expected error event, got %s", evt.Kind)
	}
	if evt.ErrorMessage != "failed to connect to live status stream" {
		t.Errorf("unexpected error message: %q", evt.ErrorMessage)
	}
	waitForRelease(t, r, "prn-1")
}

func TestRunSession_StreamReadFailure(t *testing.T) {
	dialer := &fakeDialer{}
	r := NewRegistry(dialer, &fakeVerifier{}, time.Minute)

	if err := r.StartMonitoring("prn-1", "wss://stream.example/prn-1", testCreds()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	nextEvent(t, r.Events()) // connected

	// Provider drops the connection.
	dialer.lastConn(t).Close()

	if evt := nextEvent(t, r.Events()); evt.Kind != domain.EventError {
		t.Fatalf("expected error event after stream failure, got %s", evt.Kind)
	}
	waitForRelease(t, r, "prn-1")
}

// waitForRelease blocks until the registry has dropped the reference's
// session. Terminal events are emitted after removal, so this usually returns
// immediately.
func waitForRelease(t *testing.T, r *Registry, reference string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.IsMonitoring(reference) {
		if time.Now().After(deadline) {
			t.Fatalf("session for %s was never released", reference)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseProviderFrame(t *testing.T) {
	cases := []struct {
		name           string
		payload        string
		status         string
		qrVerified     bool
		paymentSuccess bool
	}{
		{"payment success wins", `{"qrVerified":true,"paymentSuccess":true}`, "payment_success", true, true},
		{"qr verified", `{"qrVerified":true}`, "qr_verified", true, false},
		{"transaction status", `{"transactionStatus":" Pending "}`, "pending", false, false},
		{"payment status fallback", `{"paymentStatus":"Failed"}`, "failed", false, false},
		{"empty frame", `{}`, "status_update", false, false},
		{"malformed frame", `not json`, "status_update", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, qrVerified, paymentSuccess := parseProviderFrame([]byte(tc.payload))
			if status != tc.status || qrVerified != tc.qrVerified || paymentSuccess != tc.paymentSuccess {
				t.Errorf("got (%s, %v, %v), want (%s, %v, %v)",
					status, qrVerified, paymentSuccess, tc.status, tc.qrVerified, tc.paymentSuccess)
			}
		})
	}
}
