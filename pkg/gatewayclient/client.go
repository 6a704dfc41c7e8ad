/**
 * @description
 * This package provides a client for the payment provider's QR API. It
 * encapsulates authenticated HTTP requests for generating a dynamic QR,
 * querying payment status, and verifying a reported success. Checksum and
 * signature details are the provider's concern; this client treats request
 * and response payloads as opaque schemas.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the provider's QR payment API.
type Client struct {
	BaseURL      string
	SecretKey    string
	MerchantCode string
	Username     string
	Password     string
	HTTPClient   *http.Client
}

// NewClient creates a new provider API client.
func NewClient(baseURL, secretKey, merchantCode, username, password string) *Client {
	return &Client{
		BaseURL:      baseURL,
		SecretKey:    secretKey,
		MerchantCode: merchantCode,
		Username:     username,
		Password:     password,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// QrRequest is the payload for generating a dynamic payment QR.
type QrRequest struct {
	Amount       string `json:"amount"`
	Remarks1     string `json:"remarks1"`
	Remarks2     string `json:"remarks2"`
	Prn          string `json:"prn"`
	MerchantCode string `json:"merchantCode"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// QrResponse is the provider's response to a QR generation request.
type QrResponse struct {
	QrMessage                string `json:"qrMessage"`
	Status                   string `json:"status"`
	StatusCode               int    `json:"statusCode"`
	Success                  bool   `json:"success"`
	Message                  string `json:"message"`
	ThirdpartyQrWebSocketURL string `json:"thirdpartyQrWebSocketUrl"`
}

// QrStatusResponse is the synchronous status snapshot for a PRN.
type QrStatusResponse struct {
	FonepayTraceID int    `json:"fonepayTraceId"`
	PaymentStatus  string `json:"paymentStatus"`
	Prn            string `json:"prn"`
	Success        bool   `json:"success"`
	Message        string `json:"message"`
}

// ErrorResponse represents an error from the provider API.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway api error: %s", e.Message)
	}
	return fmt.Sprintf("gateway api error: status %d", e.Status)
}

// CreateDynamicQr requests a dynamic QR for the given amount and PRN.
func (c *Client) CreateDynamicQr(ctx context.Context, req QrRequest) (*QrResponse, error) {
	req.MerchantCode = c.MerchantCode
	req.Username = c.Username
	req.Password = c.Password

	var out QrResponse
	if err := c.post(ctx, "/api/merchant/merchantDetailsForThirdParty/thirdPartyDynamicQrDownload", "qr_create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckQrStatus queries the current payment status for a PRN.
func (c *Client) CheckQrStatus(ctx context.Context, prn string) (*QrStatusResponse, error) {
	payload := map[string]string{
		"prn":          prn,
		"merchantCode": c.MerchantCode,
		"username":     c.Username,
		"password":     c.Password,
	}

	var out QrStatusResponse
	if err := c.post(ctx, "/api/merchant/merchantDetailsForThirdParty/thirdPartyDynamicQrGetStatus", "qr_status", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment confirms a provider-reported success for the PRN. It
// satisfies the monitoring registry's verifier contract: the payload is the
// raw snapshot for downstream rendering, errMsg a client-safe description.
func (c *Client) VerifyPayment(ctx context.Context, prn string) (bool, json.RawMessage, string, error) {
	status, err := c.CheckQrStatus(ctx, prn)
	if err != nil {
		return false, nil, "Payment verification failed", err
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return false, nil, "Payment verification failed", err
	}

	if status.PaymentStatus != "success" {
		return false, payload, fmt.Sprintf("payment status is %q", status.PaymentStatus), nil
	}
	return true, payload, "", nil
}

// post is a generic helper to execute provider requests.
func (c *Client) post(ctx context.Context, path, op string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-gateway-key", c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		errResp.Status = resp.StatusCode
		log.Printf("level=warn component=gateway_client op=%s status=%d message=%q", op, resp.StatusCode, errResp.Message)
		return &errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
