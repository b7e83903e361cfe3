package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/sendparcel/internal/server"
	"github.com/tournevent/sendparcel/internal/telemetry"
	"github.com/tournevent/sendparcel/pkg/retry"
	"github.com/tournevent/sendparcel/pkg/shipment"
	"github.com/tournevent/sendparcel/pkg/shipment/deliverysim"
	"github.com/tournevent/sendparcel/pkg/shipment/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const callbackToken = "secret"

type serverFixture struct {
	mockAPI   *deliverysim.MockAPIClient
	repo      *shipment.MemoryRepository
	store     *retry.MemoryStore
	processor *retry.Processor
	handler   http.Handler
	advance   func(time.Duration)
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	mockAPI := deliverysim.NewMockAPIClient()
	provider := deliverysim.NewWithAPIClient(
		deliverysim.Config{CallbackToken: callbackToken}, mockAPI, logger, nil)

	registry := shipment.NewRegistry()
	registry.Register(provider)

	repo := shipment.NewMemoryRepository()
	store := retry.NewMemoryStore(60)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	store.SetClock(now)

	flow := shipment.NewFlow(registry, repo, store, logger)
	processor := retry.NewProcessor(retry.ProcessorConfig{
		MaxAttempts:    5,
		BackoffSeconds: 60,
	}, store, repo, flow, logger)
	processor.SetClock(now)

	srv := server.New(server.Config{
		Port:            8080,
		DefaultProvider: "delivery-sim",
	}, server.Deps{
		Registry:      registry,
		Repository:    repo,
		Flow:          flow,
		OrderResolver: &mock.OrderResolver{},
		Processor:     processor,
		Metrics:       telemetry.NewMetrics(prometheus.NewRegistry()),
	}, logger)

	return &serverFixture{
		mockAPI:   mockAPI,
		repo:      repo,
		store:     store,
		processor: processor,
		handler:   srv.Handler(),
		advance:   advance,
	}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// createShipment drives POST /shipments and returns the new shipment id.
func (f *serverFixture) createShipment(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/shipments",
		map[string]any{"order_id": "o-1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, "created", body["status"])
	return body["id"].(string)
}

func (f *serverFixture) sendCallback(t *testing.T, shipmentID, status string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/callbacks/delivery-sim/"+shipmentID,
		map[string]any{"status": status},
		map[string]string{deliverysim.CallbackTokenHeader: callbackToken})
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_ListProviders(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/providers", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"delivery-sim"}, decodeBody(t, rec)["providers"])
}

func TestServer_ShipmentLifecycle(t *testing.T) {
	f := newServerFixture(t)
	id := f.createShipment(t)

	rec := f.do(t, http.MethodPost, "/shipments/"+id+"/label", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "label_ready", body["status"])
	assert.NotEmpty(t, body["label_url"])

	rec = f.sendCallback(t, id, "in_transit")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in_transit", decodeBody(t, rec)["shipment_status"])

	rec = f.sendCallback(t, id, "delivered")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delivered", decodeBody(t, rec)["shipment_status"])

	// A late in_transit webhook after delivery is accepted but ignored.
	rec = f.sendCallback(t, id, "in_transit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delivered", decodeBody(t, rec)["shipment_status"])

	rec = f.do(t, http.MethodGet, "/shipments/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delivered", decodeBody(t, rec)["status"])
}

func TestServer_CreateShipment_Validation(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/shipments", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_order_id", decodeBody(t, rec)["code"])

	rec = f.do(t, http.MethodPost, "/shipments",
		map[string]any{"order_id": "o-1", "provider": "carrier-pigeon"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_provider", decodeBody(t, rec)["code"])
}

func TestServer_GetShipment_NotFound(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/shipments/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "shipment_not_found", decodeBody(t, rec)["code"])
}

func TestServer_CreateLabel_IllegalState(t *testing.T) {
	f := newServerFixture(t)
	id := f.createShipment(t)

	rec := f.sendCallback(t, id, "delivered")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/shipments/"+id+"/label", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeBody(t, rec)["code"])
}

func TestServer_Cancel(t *testing.T) {
	f := newServerFixture(t)
	id := f.createShipment(t)

	rec := f.do(t, http.MethodPost, "/shipments/"+id+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])
}

func TestServer_Callback_BadToken(t *testing.T) {
	f := newServerFixture(t)
	id := f.createShipment(t)

	rec := f.do(t, http.MethodPost, "/callbacks/delivery-sim/"+id,
		map[string]any{"status": "in_transit"},
		map[string]string{deliverysim.CallbackTokenHeader: "wrong"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_callback", decodeBody(t, rec)["code"])
	assert.Equal(t, 0, f.store.Count(), "rejected callbacks must not be retried")
}

func TestServer_Callback_ProviderMismatch(t *testing.T) {
	f := newServerFixture(t)
	id := f.createShipment(t)

	rec := f.do(t, http.MethodPost, "/callbacks/other-carrier/"+id,
		map[string]any{"status": "in_transit"}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "provider_mismatch", decodeBody(t, rec)["code"])
}

func TestServer_Callback_UnknownShipment(t *testing.T) {
	f := newServerFixture(t)

	rec := f.sendCallback(t, "nope", "in_transit")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Callback_TransientFailureEnqueuesRetry(t *testing.T) {
	f := newServerFixture(t)
	id := f.createShipment(t)

	f.mockAPI.OnConfirmEvent = func(ctx context.Context, externalID, status string) error {
		return fmt.Errorf("%w: confirm timed out", shipment.ErrCommunication)
	}

	rec := f.sendCallback(t, id, "in_transit")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "communication_error", decodeBody(t, rec)["code"])
	assert.Equal(t, 1, f.store.Count())

	// The shipment is untouched until the retry lands.
	stored, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusCreated, stored.Status)

	// Not due until the first backoff interval has passed.
	n, err := f.processor.ProcessDueRetries(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Provider recovers; the sweep replays the stored callback.
	f.mockAPI.OnConfirmEvent = nil
	f.advance(61 * time.Second)

	n, err = f.processor.ProcessDueRetries(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusInTransit, stored.Status)

	due, err := f.store.GetDueRetries(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "the entry is terminal after a successful replay")
}

func TestServer_Callback_ReplayVerifiesStoredHeaders(t *testing.T) {
	f := newServerFixture(t)
	id := f.createShipment(t)

	f.mockAPI.OnConfirmEvent = func(ctx context.Context, externalID, status string) error {
		return fmt.Errorf("%w: confirm timed out", shipment.ErrCommunication)
	}
	rec := f.sendCallback(t, id, "in_transit")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	// The replay carries the original headers, so token verification
	// passes again without the provider re-sending anything.
	f.mockAPI.OnConfirmEvent = nil
	f.advance(61 * time.Second)

	n, err := f.processor.ProcessDueRetries(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusInTransit, stored.Status)
}

func TestServer_RefreshStatus(t *testing.T) {
	f := newServerFixture(t)
	id := f.createShipment(t)

	stored, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	f.mockAPI.SetStatus(stored.ExternalID, "out_for_delivery")

	rec := f.do(t, http.MethodGet, "/shipments/"+id+"/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "out_for_delivery", decodeBody(t, rec)["status"])
}
