// Package gateway is the HTTP client for the application's backend
// functions: settlement (cancellation fees, trip payouts) and driver
// presence. The gateway owns the authoritative monetary outcomes; the
// client only ships the computed inputs.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"courier/internal/domain"
)

// TokenSource supplies the bearer credential attached to every request.
type TokenSource interface {
	Token() (string, error)
}

var (
	// ErrUnauthenticated is returned when no usable credential is available
	// or the gateway rejects the one presented.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRejected is returned when the gateway answered but reported
	// success=false for the operation.
	ErrRejected = errors.New("gateway rejected the request")
)

// Client calls the backend function endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates a gateway client. baseURL points at the function root,
// e.g. "https://api.example.com/api".
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// CancelOrderRequest carries the inputs for a settlement-side cancellation.
type CancelOrderRequest struct {
	OrderID        string         `json:"orderId"`
	CustomerID     string         `json:"customerId"`
	Reason         string         `json:"reason"`
	DriverLocation *domain.LatLng `json:"driverLocation,omitempty"`
}

// CancelOrderResult is the authoritative settlement outcome. Its amounts may
// differ from the client-side eligibility table's placeholders.
type CancelOrderResult struct {
	Success            bool    `json:"success"`
	CancellationFee    float64 `json:"cancellationFee"`
	RefundAmount       float64 `json:"refundAmount"`
	DriverCompensation float64 `json:"driverCompensation"`
	RefundID           string  `json:"refundId"`
}

// CancelOrder asks the settlement service to cancel an order and compute the
// fee, refund, and driver compensation.
func (c *Client) CancelOrder(ctx context.Context, req CancelOrderRequest) (*CancelOrderResult, error) {
	var result CancelOrderResult
	if err := c.post(ctx, "/cancel-order", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: cancel-order", ErrRejected)
	}
	return &result, nil
}

// PayoutRequest carries the inputs for a completed-trip payout.
type PayoutRequest struct {
	TripID                  string  `json:"tripId"`
	DriverID                string  `json:"driverId"`
	ConnectAccountID        string  `json:"connectAccountId"`
	Amount                  float64 `json:"amount"`
	CustomerPaymentIntentID string  `json:"customerPaymentIntentId,omitempty"`
}

// ProcessTripPayout pays the driver for a completed trip.
func (c *Client) ProcessTripPayout(ctx context.Context, req PayoutRequest) error {
	var result struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "/process-trip-payout", req, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%w: process-trip-payout", ErrRejected)
	}
	return nil
}

// onlineRequest is shared by the presence endpoints.
type onlineRequest struct {
	DriverID  string  `json:"driverId"`
	SessionID string  `json:"sessionId,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DriverOnline opens an online session and returns its identifier.
func (c *Client) DriverOnline(ctx context.Context, driverID string, loc domain.LatLng) (string, error) {
	var result struct {
		Success   bool   `json:"success"`
		SessionID string `json:"sessionId"`
	}
	req := onlineRequest{DriverID: driverID, Latitude: loc.Latitude, Longitude: loc.Longitude}
	if err := c.post(ctx, "/driver/online", req, &result); err != nil {
		return "", err
	}
	if !result.Success || result.SessionID == "" {
		return "", fmt.Errorf("%w: driver/online", ErrRejected)
	}
	return result.SessionID, nil
}

// OfflineResult reports the closed session's accumulated online time.
type OfflineResult struct {
	Success       bool    `json:"success"`
	OnlineMinutes float64 `json:"onlineMinutes"`
}

// DriverOffline closes an online session.
func (c *Client) DriverOffline(ctx context.Context, driverID, sessionID string) (*OfflineResult, error) {
	var result OfflineResult
	req := onlineRequest{DriverID: driverID, SessionID: sessionID}
	if err := c.post(ctx, "/driver/offline", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: driver/offline", ErrRejected)
	}
	return &result, nil
}

// Heartbeat refreshes a session's liveness and location. The remote side
// treats prolonged heartbeat silence as implicitly offline.
func (c *Client) Heartbeat(ctx context.Context, driverID, sessionID string, loc domain.LatLng) error {
	var result struct {
		Success bool `json:"success"`
	}
	req := onlineRequest{DriverID: driverID, SessionID: sessionID, Latitude: loc.Latitude, Longitude: loc.Longitude}
	if err := c.post(ctx, "/driver/heartbeat", req, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%w: driver/heartbeat", ErrRejected)
	}
	return nil
}

// OnlineDrivers returns online sessions within radiusMiles of a point.
func (c *Client) OnlineDrivers(ctx context.Context, lat, lng, radiusMiles float64) ([]domain.OnlineDriver, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("radiusMiles", strconv.FormatFloat(radiusMiles, 'f', -1, 64))

	body, err := c.do(ctx, http.MethodGet, "/drivers/online?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Drivers []struct {
			DriverID      string  `json:"driverId"`
			Latitude      float64 `json:"latitude"`
			Longitude     float64 `json:"longitude"`
			DistanceMiles float64 `json:"distanceMiles"`
		} `json:"drivers"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode drivers/online: %w", err)
	}

	drivers := make([]domain.OnlineDriver, 0, len(result.Drivers))
	for _, d := range result.Drivers {
		drivers = append(drivers, domain.OnlineDriver{
			DriverID:      d.DriverID,
			Location:      domain.LatLng{Latitude: d.Latitude, Longitude: d.Longitude},
			DistanceMiles: d.DistanceMiles,
		})
	}
	return drivers, nil
}

func (c *Client) post(ctx context.Context, path string, req, result any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	token, err := c.tokens.Token()
	if err != nil || token == "" {
		return nil, fmt.Errorf("%w: no bearer token", ErrUnauthenticated)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	default:
		return nil, fmt.Errorf("gateway error: status %d: %s", resp.StatusCode, string(respBody))
	}
}
