package provider

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/telemetry"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	replicateBaseURL = "https://api.replicate.com/v1"

	requestTimeout = 30 * time.Second // Timeout for individual API requests
	pollInterval   = 2 * time.Second  // Delay between prediction status checks

	// Connection pool configuration
	maxIdleConns        = 100              // Total idle connections across all hosts
	maxIdleConnsPerHost = 20               // Idle connections per host (default is 2, too low)
	idleConnTimeout     = 90 * time.Second // Timeout for idle connections
)

// HTTP header names used in Replicate API requests.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
)

// Prediction states reported by the Replicate API.
const (
	predictionSucceeded = "succeeded"
	predictionFailed    = "failed"
	predictionCanceled  = "canceled"
)

// replicateClient talks to the Replicate REST API: it creates a prediction,
// polls it to completion within the configured timeout, and extracts the
// output URLs.
type replicateClient struct {
	client  *resty.Client
	model   string
	timeout time.Duration
	tracing *telemetry.TracerWrapper
}

// prediction is the subset of the Replicate prediction resource the engine
// consumes. Output is kept raw because the API returns either a single URL
// string or a list of URL strings depending on the model.
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// newReplicateClient creates the real provider client with a pooled
// transport, TLS 1.2 minimum, and a per-request timeout.
// The prediction poll loop owns the overall generation deadline.
func newReplicateClient(cfg models.Config, tracing *telemetry.TracerWrapper) *replicateClient {
	client := resty.New().
		SetBaseURL(replicateBaseURL).
		SetTimeout(requestTimeout).
		SetHeader(headerAuthorization, "Token "+cfg.Provider.APIToken).
		SetHeader(headerContentType, "application/json")

	httpClient := client.GetClient()
	httpClient.Transport = &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &replicateClient{
		client:  client,
		model:   cfg.Provider.Model,
		timeout: cfg.GetProviderTimeout(),
		tracing: tracing,
	}
}

// Generate submits the prompt with cleaned parameters and waits for the
// prediction to complete. Returns the output URLs on success.
func (c *replicateClient) Generate(ctx context.Context, prompt string, parameters models.JSONMap) ([]string, error) {
	ctx, span := c.tracing.StartSpan(ctx, "provider.generate", trace.SpanKindClient)
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrProviderModel, c.model))

	input := models.JSONMap{"prompt": prompt}
	for k, v := range CleanParams(c.model, parameters) {
		input[k] = v
	}

	pred, err := c.createPrediction(ctx, input)
	if err != nil {
		c.tracing.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.AttrProviderTaskID, pred.ID))

	urls, err := c.waitForPrediction(ctx, pred.ID)
	if err != nil {
		c.tracing.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int(telemetry.AttrProviderOutputURLs, len(urls)))
	span.SetStatus(codes.Ok, "")
	return urls, nil
}

// createPrediction starts a prediction. Models in <owner>/<name>:<version>
// form go through the versioned predictions endpoint; bare <owner>/<name>
// identifiers go through the models endpoint.
func (c *replicateClient) createPrediction(ctx context.Context, input models.JSONMap) (*prediction, error) {
	name, version := splitModel(c.model)

	var url string
	payload := map[string]interface{}{"input": input}
	if version != "" {
		url = "/predictions"
		payload["version"] = version
	} else {
		url = fmt.Sprintf("/models/%s/predictions", name)
	}

	var pred prediction
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&pred).
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("%w: creating prediction: %v", ErrProviderFailure, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: creating prediction: status=%d body=%s",
			ErrProviderFailure, resp.StatusCode(), truncate(string(resp.Body()), 200))
	}

	log.WithFields(log.Fields{"prediction_id": pred.ID, "model": c.model}).Info("Created prediction")
	return &pred, nil
}

// waitForPrediction polls the prediction until it reaches a final state or
// the generation timeout elapses.
func (c *replicateClient) waitForPrediction(ctx context.Context, predictionID string) ([]string, error) {
	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: prediction %s timed out after %s",
				ErrProviderFailure, predictionID, c.timeout)
		}

		var pred prediction
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&pred).
			Get("/predictions/" + predictionID)
		if err != nil {
			return nil, fmt.Errorf("%w: polling prediction %s: %v", ErrProviderFailure, predictionID, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%w: polling prediction %s: status=%d",
				ErrProviderFailure, predictionID, resp.StatusCode())
		}

		log.WithFields(log.Fields{"prediction_id": predictionID, "status": pred.Status}).Debug("Prediction status")

		switch pred.Status {
		case predictionSucceeded:
			return extractOutputURLs(pred.Output)
		case predictionFailed:
			msg := pred.Error
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("%w: prediction failed: %s", ErrProviderFailure, msg)
		case predictionCanceled:
			return nil, fmt.Errorf("%w: prediction was canceled", ErrProviderFailure)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrProviderFailure, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Cancel requests best-effort remote cancellation of a running prediction.
func (c *replicateClient) Cancel(ctx context.Context, taskID string) (bool, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/predictions/%s/cancel", taskID))
	if err != nil {
		log.WithFields(log.Fields{"prediction_id": taskID, "error": err.Error()}).Error("Failed to cancel prediction")
		return false, nil
	}
	if resp.IsError() {
		log.WithFields(log.Fields{"prediction_id": taskID, "status": resp.StatusCode()}).Error("Failed to cancel prediction")
		return false, nil
	}

	log.WithField("prediction_id", taskID).Info("Cancelled prediction")
	return true, nil
}

// extractOutputURLs normalizes the prediction output, which is either a JSON
// string or a JSON array of strings. An empty output is a provider failure.
func extractOutputURLs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: prediction produced no output", ErrProviderFailure)
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil, fmt.Errorf("%w: prediction produced no output", ErrProviderFailure)
		}
		return []string{single}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("%w: unexpected output format: %s", ErrProviderFailure, truncate(string(raw), 100))
	}
	if len(many) == 0 {
		return nil, fmt.Errorf("%w: prediction produced no output", ErrProviderFailure)
	}
	return many, nil
}

// splitModel splits <owner>/<name>[:<version>] into name and version.
func splitModel(model string) (name, version string) {
	for i := 0; i < len(model); i++ {
		if model[i] == ':' {
			return model[:i], model[i+1:]
		}
	}
	return model, ""
}

// truncate shortens s to at most n bytes for log and error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
