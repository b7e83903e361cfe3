// Package deliverysim provides the reference delivery-sim provider: a
// simulated carrier useful for local development and integration testing.
package deliverysim

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/tournevent/sendparcel/pkg/shipment"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const providerSlug = "delivery-sim"

// CallbackTokenHeader authenticates inbound simulator callbacks.
const CallbackTokenHeader = "X-Delivery-Token"

// Config holds delivery-sim configuration.
type Config struct {
	BaseURL       string
	APIKey        string
	CallbackToken string // shared secret expected on inbound callbacks
	UseMock       bool   // when true, uses the mock API client
}

// Client is the delivery-sim provider. It implements shipment.Provider and
// delegates API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new delivery-sim provider. If cfg.UseMock is true, it uses
// a mock API client; otherwise the real HTTP client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient
	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: 30 * time.Second,
		})
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// NewWithAPIClient creates a delivery-sim provider with a custom API
// client. Useful for injecting mocks in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Slug returns the provider slug.
func (c *Client) Slug() string {
	return providerSlug
}

// CreateShipment registers the shipment with the simulator.
func (c *Client) CreateShipment(ctx context.Context, sh *shipment.Shipment, order shipment.Order) (*shipment.CreateResult, error) {
	sender := order.SenderAddress()
	receiver := order.ReceiverAddress()
	c.logger.Ctx(ctx).Info("Registering delivery-sim shipment",
		zap.String("shipment_id", sh.ID),
		zap.String("order_reference", order.Reference()),
	)

	resp, err := c.apiClient.RegisterShipment(ctx, &RegisterRequest{
		Reference:     order.Reference(),
		WeightKG:      order.TotalWeight(),
		SenderCity:    sender.City,
		SenderCountry: sender.CountryCode,
		ReceiverCity:  receiver.City,
		ReceiverZip:   receiver.PostalCode,
	})
	if err != nil {
		c.logger.Ctx(ctx).Error("Delivery-sim API error", zap.Error(err))
		return nil, err
	}

	return &shipment.CreateResult{
		ExternalID:     resp.ExternalID,
		TrackingNumber: resp.TrackingNumber,
	}, nil
}

// CreateLabel fetches the hosted label for the shipment.
func (c *Client) CreateLabel(ctx context.Context, sh *shipment.Shipment) (*shipment.LabelInfo, error) {
	resp, err := c.apiClient.CreateLabel(ctx, sh.ExternalID)
	if err != nil {
		c.logger.Ctx(ctx).Error("Delivery-sim API error", zap.Error(err))
		return nil, err
	}

	format := shipment.LabelFormat(resp.Format)
	if format == "" {
		format = shipment.LabelPDF
	}
	return &shipment.LabelInfo{Format: format, URL: resp.URL}, nil
}

// VerifyCallback checks the shared callback token. A missing or wrong
// token is a permanent failure; the same payload would fail again.
func (c *Client) VerifyCallback(ctx context.Context, payload map[string]any, headers map[string]string) error {
	if c.config.CallbackToken == "" {
		return nil // token auth disabled
	}
	token := headerValue(headers, CallbackTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(c.config.CallbackToken)) != 1 {
		return fmt.Errorf("%w: bad or missing %s header", shipment.ErrInvalidCallback, CallbackTokenHeader)
	}
	return nil
}

// HandleCallback interprets a verified callback. The event is confirmed
// with the simulator (a secondary network call, so a transient failure can
// surface here) and then applied as a guarded transition. Unknown statuses
// and illegal transitions are silent no-ops, tolerating duplicate and
// out-of-order webhooks.
func (c *Client) HandleCallback(ctx context.Context, sh *shipment.Shipment, payload map[string]any, headers map[string]string) error {
	status, _ := payload["status"].(string)
	if status == "" {
		return nil
	}

	if err := c.apiClient.ConfirmEvent(ctx, sh.ExternalID, status); err != nil {
		return err
	}

	event, ok := shipment.EventForStatus(status)
	if !ok {
		c.logger.Ctx(ctx).Warn("Unknown callback status ignored",
			zap.String("shipment_id", sh.ID),
			zap.String("status", status),
		)
		return nil
	}
	if !sh.MayTrigger(event) {
		if sh.Status != shipment.Status(status) {
			c.logger.Ctx(ctx).Debug("Callback transition not legal, ignoring",
				zap.String("shipment_id", sh.ID),
				zap.String("current_status", string(sh.Status)),
				zap.String("callback_status", status),
			)
		}
		return nil
	}
	return sh.Trigger(event)
}

// FetchShipmentStatus asks the simulator for the current status.
func (c *Client) FetchShipmentStatus(ctx context.Context, sh *shipment.Shipment) (*shipment.StatusResult, error) {
	resp, err := c.apiClient.GetStatus(ctx, sh.ExternalID)
	if err != nil {
		return nil, err
	}
	return &shipment.StatusResult{Status: resp.Status}, nil
}

// CancelShipment cancels the shipment with the simulator.
func (c *Client) CancelShipment(ctx context.Context, sh *shipment.Shipment) (bool, error) {
	resp, err := c.apiClient.CancelShipment(ctx, sh.ExternalID)
	if err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

// headerValue does a case-insensitive header lookup; callback headers are
// replayed from storage and may not be canonicalized.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
