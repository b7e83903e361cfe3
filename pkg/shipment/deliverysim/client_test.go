package deliverysim_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/sendparcel/pkg/shipment"
	"github.com/tournevent/sendparcel/pkg/shipment/deliverysim"
	"github.com/tournevent/sendparcel/pkg/shipment/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestClient(mockAPI *deliverysim.MockAPIClient, token string) *deliverysim.Client {
	logger := otelzap.New(zap.NewNop())
	return deliverysim.NewWithAPIClient(
		deliverysim.Config{CallbackToken: token},
		mockAPI,
		logger,
		nil,
	)
}

func TestClient_Slug(t *testing.T) {
	client := newTestClient(deliverysim.NewMockAPIClient(), "")
	assert.Equal(t, "delivery-sim", client.Slug())
}

func TestClient_CreateShipment(t *testing.T) {
	mockAPI := deliverysim.NewMockAPIClient()
	client := newTestClient(mockAPI, "")

	sh := &shipment.Shipment{ID: "shp-1", Status: shipment.StatusNew}
	result, err := client.CreateShipment(context.Background(), sh, &mock.Order{Ref: "o-1"})

	require.NoError(t, err)
	assert.NotEmpty(t, result.ExternalID)
	assert.NotEmpty(t, result.TrackingNumber)
}

func TestClient_CreateShipment_NetworkFailure(t *testing.T) {
	mockAPI := deliverysim.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI, "")

	sh := &shipment.Shipment{ID: "shp-1", Status: shipment.StatusNew}
	_, err := client.CreateShipment(context.Background(), sh, &mock.Order{})

	require.Error(t, err)
	assert.True(t, shipment.IsRetryable(err))
}

func TestClient_CreateLabel(t *testing.T) {
	client := newTestClient(deliverysim.NewMockAPIClient(), "")

	sh := &shipment.Shipment{ID: "shp-1", ExternalID: "sim-abc", Status: shipment.StatusCreated}
	label, err := client.CreateLabel(context.Background(), sh)

	require.NoError(t, err)
	assert.Equal(t, shipment.LabelPDF, label.Format)
	assert.Contains(t, label.URL, "sim-abc")
}

func TestClient_VerifyCallback(t *testing.T) {
	client := newTestClient(deliverysim.NewMockAPIClient(), "hunter2")

	err := client.VerifyCallback(context.Background(), nil,
		map[string]string{"X-Delivery-Token": "hunter2"})
	assert.NoError(t, err)

	// Header lookup is case-insensitive; replayed headers may not be
	// canonicalized.
	err = client.VerifyCallback(context.Background(), nil,
		map[string]string{"x-delivery-token": "hunter2"})
	assert.NoError(t, err)
}

func TestClient_VerifyCallback_BadToken(t *testing.T) {
	client := newTestClient(deliverysim.NewMockAPIClient(), "hunter2")

	err := client.VerifyCallback(context.Background(), nil,
		map[string]string{"X-Delivery-Token": "wrong"})
	assert.ErrorIs(t, err, shipment.ErrInvalidCallback)

	err = client.VerifyCallback(context.Background(), nil, map[string]string{})
	assert.ErrorIs(t, err, shipment.ErrInvalidCallback)
}

func TestClient_VerifyCallback_TokenAuthDisabled(t *testing.T) {
	client := newTestClient(deliverysim.NewMockAPIClient(), "")

	err := client.VerifyCallback(context.Background(), nil, map[string]string{})
	assert.NoError(t, err)
}

func TestClient_HandleCallback_AppliesStatus(t *testing.T) {
	client := newTestClient(deliverysim.NewMockAPIClient(), "")

	sh := &shipment.Shipment{ID: "shp-1", ExternalID: "sim-abc", Status: shipment.StatusCreated}
	err := client.HandleCallback(context.Background(), sh,
		map[string]any{"status": "in_transit"}, map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, shipment.StatusInTransit, sh.Status)
}

func TestClient_HandleCallback_ConfirmFailureIsTransient(t *testing.T) {
	mockAPI := deliverysim.NewMockAPIClient()
	mockAPI.OnConfirmEvent = func(ctx context.Context, externalID, status string) error {
		return fmt.Errorf("%w: confirm timed out", shipment.ErrCommunication)
	}
	client := newTestClient(mockAPI, "")

	sh := &shipment.Shipment{ID: "shp-1", ExternalID: "sim-abc", Status: shipment.StatusCreated}
	err := client.HandleCallback(context.Background(), sh,
		map[string]any{"status": "in_transit"}, map[string]string{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, shipment.ErrCommunication))
	assert.Equal(t, shipment.StatusCreated, sh.Status,
		"no transition when confirmation fails")
}

func TestClient_HandleCallback_StaleStatusIsNoop(t *testing.T) {
	client := newTestClient(deliverysim.NewMockAPIClient(), "")

	sh := &shipment.Shipment{ID: "shp-1", ExternalID: "sim-abc", Status: shipment.StatusDelivered}
	err := client.HandleCallback(context.Background(), sh,
		map[string]any{"status": "in_transit"}, map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, shipment.StatusDelivered, sh.Status)
}

func TestClient_HandleCallback_MissingStatusIsNoop(t *testing.T) {
	client := newTestClient(deliverysim.NewMockAPIClient(), "")

	sh := &shipment.Shipment{ID: "shp-1", ExternalID: "sim-abc", Status: shipment.StatusCreated}
	err := client.HandleCallback(context.Background(), sh,
		map[string]any{"event": "ping"}, map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, shipment.StatusCreated, sh.Status)
}

func TestClient_FetchShipmentStatus(t *testing.T) {
	mockAPI := deliverysim.NewMockAPIClient()
	mockAPI.SetStatus("sim-abc", "out_for_delivery")
	client := newTestClient(mockAPI, "")

	sh := &shipment.Shipment{ID: "shp-1", ExternalID: "sim-abc", Status: shipment.StatusInTransit}
	result, err := client.FetchShipmentStatus(context.Background(), sh)

	require.NoError(t, err)
	assert.Equal(t, "out_for_delivery", result.Status)
}

func TestClient_CancelShipment(t *testing.T) {
	mockAPI := deliverysim.NewMockAPIClient()
	mockAPI.SetStatus("sim-abc", "created")
	client := newTestClient(mockAPI, "")

	sh := &shipment.Shipment{ID: "shp-1", ExternalID: "sim-abc", Status: shipment.StatusCreated}
	cancelled, err := client.CancelShipment(context.Background(), sh)

	require.NoError(t, err)
	assert.True(t, cancelled)
}
