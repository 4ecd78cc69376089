package deviceauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Registration is what the server hands back when a device registers: the
// device id plus the short-lived pairing code the user must enter on the web.
type Registration struct {
	DeviceID  string    `json:"deviceId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Token is an issued device token and its hard expiry
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the token's remaining lifetime exceeds threshold
func (t *Token) Valid(now time.Time, threshold time.Duration) bool {
	return t.Value != "" && t.ExpiresAt.Sub(now) > threshold
}

// Client is the thin HTTP client for the pairing endpoints
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a pairing API client. httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Register starts a pairing attempt for the given fingerprint
func (c *Client) Register(ctx context.Context, fingerprint string) (*Registration, error) {
	resp, err := c.post(ctx, "/api/v1/devices/register", map[string]string{
		"device_fingerprint": fingerprint,
	}, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var reg Registration
		if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
			return nil, fmt.Errorf("decode registration: %w", err)
		}
		return &reg, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: server returned %d", ErrServiceUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("register: unexpected status %d", resp.StatusCode)
	}
}

// Exchange attempts to trade the device id and pairing code for a token.
// Before the user has linked the device it returns ErrNotLinkedYet; once the
// code has expired or been consumed it returns ErrCodeExpired.
func (c *Client) Exchange(ctx context.Context, deviceID, code string) (*Token, error) {
	resp, err := c.post(ctx, "/api/v1/devices/exchange", map[string]string{
		"deviceId": deviceID,
		"code":     code,
	}, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeToken(resp)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusTooEarly:
		return nil, ErrNotLinkedYet
	case resp.StatusCode == http.StatusGone:
		return nil, ErrCodeExpired
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: server returned %d", ErrServiceUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("exchange: unexpected status %d", resp.StatusCode)
	}
}

// Refresh trades the current token for a fresh one
func (c *Client) Refresh(ctx context.Context, current string) (*Token, error) {
	resp, err := c.post(ctx, "/api/v1/devices/refresh", nil, current)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeToken(resp)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuthFailed
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: server returned %d", ErrServiceUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("refresh: unexpected status %d", resp.StatusCode)
	}
}

// post issues a JSON POST, optionally with a bearer token
func (c *Client) post(ctx context.Context, path string, body any, bearer string) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.http.Do(req)
}

func decodeToken(resp *http.Response) (*Token, error) {
	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}
