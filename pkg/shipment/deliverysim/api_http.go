package deliverysim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tournevent/sendparcel/pkg/shipment"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RegisterShipment registers a shipment with the simulator.
func (c *HTTPAPIClient) RegisterShipment(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	var result RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, "/delivery-sim/register", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateLabel generates a hosted label for the shipment.
func (c *HTTPAPIClient) CreateLabel(ctx context.Context, externalID string) (*LabelResponse, error) {
	var result LabelResponse
	path := fmt.Sprintf("/delivery-sim/label/%s", externalID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStatus fetches the simulator's current status for the shipment.
func (c *HTTPAPIClient) GetStatus(ctx context.Context, externalID string) (*StatusResponse, error) {
	var result StatusResponse
	path := fmt.Sprintf("/delivery-sim/status/%s", externalID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmEvent acknowledges a callback event with the simulator.
func (c *HTTPAPIClient) ConfirmEvent(ctx context.Context, externalID string, status string) error {
	path := fmt.Sprintf("/delivery-sim/confirm/%s", externalID)
	body := map[string]string{"status": status}
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// CancelShipment cancels the shipment.
func (c *HTTPAPIClient) CancelShipment(ctx context.Context, externalID string) (*CancelResponse, error) {
	var result CancelResponse
	path := fmt.Sprintf("/delivery-sim/cancel/%s", externalID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doJSON performs an HTTP round trip with JSON bodies. Transport-level
// failures surface as ErrCommunication so callers classify them as
// transient; API-level errors decode into APIError.
func (c *HTTPAPIClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", shipment.ErrCommunication, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s %s: status %d", shipment.ErrCommunication, method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Code: fmt.Sprintf("HTTP_%d", resp.StatusCode)}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
