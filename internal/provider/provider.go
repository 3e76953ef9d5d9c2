// Package provider abstracts the remote text-to-media synthesis service.
// It exposes a Client interface with a Replicate-backed implementation and a
// deterministic local mock used in non-production environments when no API
// token is configured.
package provider

import (
	"context"
	"errors"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Sentinel errors for provider failures.
var (
	// ErrProviderFailure indicates a network, timeout or provider-side
	// failure, or an empty output. Retryable.
	ErrProviderFailure = errors.New("provider: generation failed")

	// ErrConfigMissing indicates no API token is configured in production.
	// Non-retryable and fatal to the worker.
	ErrConfigMissing = errors.New("provider: API token missing in production")
)

// Client is the contract the worker depends on.
//
// Generate submits a generation request, waits for completion, and returns
// one or more accessible URLs. Each URL is either HTTP(S) or an inline
// data: URL carrying base64 bytes. Parameters are cleaned per the configured
// model before submission.
//
// Cancel requests best-effort remote cancellation of an in-flight task.
type Client interface {
	Generate(ctx context.Context, prompt string, parameters models.JSONMap) ([]string, error)
	Cancel(ctx context.Context, taskID string) (bool, error)
}

// Option configures optional client settings.
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
}

// WithTracerProvider sets the TracerProvider for distributed tracing.
// If not provided, tracing operations use a noop provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// New selects the client implementation from the configuration:
//   - API token present: the real Replicate client.
//   - No token outside production: the local mock.
//   - No token in production: ErrConfigMissing.
func New(cfg models.Config, opts ...Option) (Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Provider.APIToken != "" {
		return newReplicateClient(cfg, telemetry.NewTracerWrapper(o.tracerProvider, "mediagen/provider")), nil
	}
	if cfg.IsProduction() {
		return nil, ErrConfigMissing
	}

	log.Warn("No provider API token configured, using mock provider")
	return NewMockClient(cfg.Provider.Model), nil
}
