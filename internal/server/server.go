package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/sendparcel/internal/telemetry"
	"github.com/tournevent/sendparcel/pkg/retry"
	"github.com/tournevent/sendparcel/pkg/shipment"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server is the HTTP boundary of the service: a small REST surface over
// the shipment flow plus the provider callback receiver. Its only job is
// mapping flow outcomes to transport responses.
type Server struct {
	cfg       Config
	registry  *shipment.Registry
	repo      shipment.Repository
	flow      *shipment.Flow
	orders    shipment.OrderResolver
	processor *retry.Processor
	logger    *otelzap.Logger
	metrics   *telemetry.Metrics
}

// Config holds server configuration.
type Config struct {
	Port            int
	DefaultProvider string

	// Retry sweep settings for the in-process worker.
	RetryInterval  time.Duration
	RetryBatchSize int
}

// Deps bundles the collaborators the server drives.
type Deps struct {
	Registry      *shipment.Registry
	Repository    shipment.Repository
	Flow          *shipment.Flow
	OrderResolver shipment.OrderResolver
	Processor     *retry.Processor

	// Metrics overrides the default-registry metrics. Tests pass one
	// backed by an isolated registry.
	Metrics *telemetry.Metrics
}

// New creates a new server instance.
func New(cfg Config, deps Deps, logger *otelzap.Logger) *Server {
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	if cfg.RetryBatchSize == 0 {
		cfg.RetryBatchSize = 10
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	return &Server{
		cfg:       cfg,
		registry:  deps.Registry,
		repo:      deps.Repository,
		flow:      deps.Flow,
		orders:    deps.OrderResolver,
		processor: deps.Processor,
		logger:    logger,
		metrics:   metrics,
	}
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /providers", s.handleListProviders)

	mux.HandleFunc("POST /shipments", s.handleCreateShipment)
	mux.HandleFunc("GET /shipments/{id}", s.handleGetShipment)
	mux.HandleFunc("POST /shipments/{id}/label", s.handleCreateLabel)
	mux.HandleFunc("GET /shipments/{id}/status", s.handleRefreshStatus)
	mux.HandleFunc("POST /shipments/{id}/cancel", s.handleCancel)

	mux.HandleFunc("POST /callbacks/{provider}/{id}", s.handleCallback)

	return mux
}

// Run starts the HTTP server and the retry worker, blocking until the
// context is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if s.processor != nil {
		g.Go(func() error {
			s.runRetrySweeps(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runRetrySweeps drives the retry processor on a ticker until the context
// is cancelled.
func (s *Server) runRetrySweeps(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			n, err := s.processor.ProcessDueRetries(ctx, s.cfg.RetryBatchSize)
			s.metrics.RetrySweepDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				s.metrics.RetriesProcessed.WithLabelValues("sweep_error").Inc()
				s.logger.Ctx(ctx).Error("Retry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.metrics.RetriesProcessed.WithLabelValues("processed").Add(float64(n))
				s.logger.Ctx(ctx).Info("Retry sweep complete", zap.Int("processed", n))
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.registry.Slugs()})
}

type createShipmentRequest struct {
	OrderID  string `json:"order_id"`
	Provider string `json:"provider,omitempty"`
}

type shipmentResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Provider       string `json:"provider"`
	ExternalID     string `json:"external_id,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	LabelURL       string `json:"label_url,omitempty"`
	OrderReference string `json:"order_reference,omitempty"`
}

func toShipmentResponse(sh *shipment.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:             sh.ID,
		Status:         string(sh.Status),
		Provider:       sh.Provider,
		ExternalID:     sh.ExternalID,
		TrackingNumber: sh.TrackingNumber,
		LabelURL:       sh.LabelURL,
		OrderReference: sh.OrderReference,
	}
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_json", err.Error()))
		return
	}
	if req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing_order_id", "order_id is required"))
		return
	}
	providerSlug := req.Provider
	if providerSlug == "" {
		providerSlug = s.cfg.DefaultProvider
	}

	ctx := r.Context()
	order, err := s.orders.Resolve(ctx, req.OrderID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sh, err := s.flow.CreateShipment(ctx, order, providerSlug)
	s.metrics.RecordRequest("create_shipment", providerSlug, outcome(err), time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentResponse(sh))
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(sh))
}

func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	sh, err := s.repo.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	slug := sh.Provider
	sh, err = s.flow.CreateLabel(ctx, sh)
	s.metrics.RecordRequest("create_label", slug, outcome(err), time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(sh))
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	sh, err := s.repo.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	slug := sh.Provider
	sh, err = s.flow.RefreshStatus(ctx, sh)
	s.metrics.RecordRequest("refresh_status", slug, outcome(err), time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(sh))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	sh, err := s.repo.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	slug := sh.Provider
	sh, err = s.flow.Cancel(ctx, sh)
	s.metrics.RecordRequest("cancel_shipment", slug, outcome(err), time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(sh))
}

// handleCallback receives a provider webhook, replays it through the flow,
// and maps the classified outcome: invalid callbacks answer 400 with no
// retry enqueued, transient provider failures answer 502 after the flow
// has enqueued a retry entry.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerSlug := r.PathValue("provider")
	shipmentID := r.PathValue("id")

	sh, err := s.repo.GetByID(ctx, shipmentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sh.Provider != providerSlug {
		s.metrics.RecordCallback(providerSlug, "provider_mismatch")
		writeJSON(w, http.StatusBadRequest, errorBody("provider_mismatch",
			"shipment does not belong to provider "+providerSlug))
		return
	}

	payload := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		// Malformed bodies still go through verification so the provider
		// decides whether the callback is acceptable.
		payload = map[string]any{}
	}
	headers := flattenHeaders(r.Header)

	sh, err = s.flow.HandleCallback(ctx, sh, payload, headers)
	if err != nil {
		s.metrics.RecordCallback(providerSlug, outcome(err))
		s.logger.Ctx(ctx).Warn("Callback handling failed",
			zap.String("shipment_id", shipmentID),
			zap.String("provider", providerSlug),
			zap.Error(err),
		)
		s.writeError(w, err)
		return
	}

	s.metrics.RecordCallback(providerSlug, "accepted")
	if want, _ := payload["status"].(string); want != "" && want != string(sh.Status) {
		reason := "stale"
		if _, known := shipment.EventForStatus(want); !known {
			reason = "unknown_status"
		}
		s.metrics.RecordIgnoredTransition(providerSlug, reason)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":        providerSlug,
		"status":          "accepted",
		"shipment_status": string(sh.Status),
	})
}

// writeError maps the domain error taxonomy to HTTP statuses:
// not found 404, transient provider failure 502, invalid callback 400,
// illegal transition and version conflicts 409, provider-domain errors 400.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var invalidTransition *shipment.InvalidTransitionError
	var providerErr *shipment.ProviderError

	switch {
	case errors.Is(err, shipment.ErrShipmentNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("shipment_not_found", err.Error()))
	case errors.Is(err, shipment.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("order_not_found", err.Error()))
	case shipment.IsRetryable(err):
		writeJSON(w, http.StatusBadGateway, errorBody("communication_error", err.Error()))
	case errors.Is(err, shipment.ErrInvalidCallback):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_callback", err.Error()))
	case errors.As(err, &invalidTransition):
		writeJSON(w, http.StatusConflict, errorBody("invalid_transition", err.Error()))
	case errors.Is(err, shipment.ErrStaleShipment):
		writeJSON(w, http.StatusConflict, errorBody("conflict", err.Error()))
	case errors.Is(err, shipment.ErrProviderNotFound):
		writeJSON(w, http.StatusBadRequest, errorBody("unknown_provider", err.Error()))
	case errors.As(err, &providerErr):
		writeJSON(w, http.StatusBadRequest, errorBody("shipment_error", err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case shipment.IsRetryable(err):
		return "communication_error"
	case errors.Is(err, shipment.ErrInvalidCallback):
		return "invalid_callback"
	default:
		return "error"
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		out[name] = h.Get(name)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func errorBody(code, detail string) map[string]string {
	return map[string]string{"code": code, "detail": detail}
}
