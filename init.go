package main

import (
	"context"

	"github.com/tournevent/sendparcel/internal/config"
	"github.com/tournevent/sendparcel/internal/telemetry"
	"github.com/tournevent/sendparcel/pkg/shipment"
	"github.com/tournevent/sendparcel/pkg/shipment/deliverysim"
	"github.com/tournevent/sendparcel/pkg/shipment/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
}

func initProviderRegistry(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) *shipment.Registry {
	registry := shipment.NewRegistry()

	if cfg.DeliverySimEnabled {
		sim := deliverysim.New(deliverysim.Config{
			BaseURL:       cfg.DeliverySimBaseURL,
			APIKey:        cfg.DeliverySimAPIKey,
			CallbackToken: cfg.DeliverySimCallbackToken,
			UseMock:       cfg.DeliverySimUseMock,
		}, logger, tracer)
		registry.Register(sim)
	}

	return registry
}

// initOrderResolver returns the order lookup used by shipment creation.
// The reference build resolves every id to a fixed test order; a real
// deployment wires its order system here.
func initOrderResolver() shipment.OrderResolver {
	return &mock.OrderResolver{}
}
