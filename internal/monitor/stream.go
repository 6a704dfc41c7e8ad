/**
 * @description
 * This file defines the provider-stream boundary for the registry: how a
 * session dials the provider's live status websocket and how raw frames are
 * interpreted. The dialer and verifier are interfaces so tests can drive a
 * session with scripted frames instead of a network connection.
 */

package monitor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// StreamConn is one live provider status stream.
type StreamConn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// StreamDialer opens the provider stream at the given connection target.
type StreamDialer interface {
	Dial(ctx context.Context, target string, creds Credentials) (StreamConn, error)
}

// PaymentVerifier confirms a provider-reported success through the
// verification API. The payload and error message are opaque to the registry.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, reference string) (success bool, payload json.RawMessage, errMsg string, err error)
}

type frameResult struct {
	payload []byte
	err     error
}

// readFrames pumps stream frames into the session loop until the connection
// errors or the session is done.
func readFrames(conn StreamConn, frames chan<- frameResult, done <-chan struct{}) {
	for {
		payload, err := conn.ReadMessage()
		select {
		case frames <- frameResult{payload: payload, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// providerFrame is the subset of the provider's frame schema the registry
// inspects; everything else rides along in the raw payload.
type providerFrame struct {
	TransactionStatus string `json:"transactionStatus"`
	PaymentStatus     string `json:"paymentStatus"`
	QrVerified        bool   `json:"qrVerified"`
	PaymentSuccess    bool   `json:"paymentSuccess"`
}

func parseProviderFrame(payload []byte) (status string, qrVerified, paymentSuccess bool) {
	var frame providerFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return "status_update", false, false
	}

	switch {
	case frame.PaymentSuccess:
		status = "payment_success"
	case frame.QrVerified:
		status = "qr_verified"
	case frame.TransactionStatus != "":
		status = strings.ToLower(strings.TrimSpace(frame.TransactionStatus))
	case frame.PaymentStatus != "":
		status = strings.ToLower(strings.TrimSpace(frame.PaymentStatus))
	default:
		status = "status_update"
	}
	return status, frame.QrVerified, frame.PaymentSuccess
}

// WebsocketDialer dials the provider stream over a real websocket connection.
type WebsocketDialer struct{}

type websocketStream struct {
	conn *websocket.Conn
}

func (s *websocketStream) ReadMessage() ([]byte, error) {
	_, payload, err := s.conn.ReadMessage()
	return payload, err
}

func (s *websocketStream) Close() error {
	return s.conn.Close()
}

// Dial opens the stream with the merchant's basic credentials attached.
func (d *WebsocketDialer) Dial(ctx context.Context, target string, creds Credentials) (StreamConn, error) {
	header := http.Header{}
	if creds.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
		header.Set("Authorization", "Basic "+auth)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &websocketStream{conn: conn}, nil
}
