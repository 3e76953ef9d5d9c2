package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	// mockDefaultDimension is used when the request carries no width/height.
	mockDefaultDimension = 1024

	// mockFrameWidth is the border thickness of the generated test image.
	mockFrameWidth = 16

	// mockLatency simulates a realistic provider round trip so timing-related
	// behavior (progress reporting, cancellation races) is observable in
	// development.
	mockLatency = 5 * time.Second
)

// MockClient is the development stand-in for the real provider. It produces
// a deterministic PNG as a base64 data URL so the rest of the pipeline
// (download, metadata extraction, storage upload) runs unchanged.
type MockClient struct {
	model   string
	latency time.Duration
}

// NewMockClient creates a mock provider for the given model identifier.
func NewMockClient(model string) *MockClient {
	return &MockClient{
		model:   model,
		latency: mockLatency,
	}
}

// SetLatency overrides the simulated generation delay. Tests set it to zero.
func (c *MockClient) SetLatency(d time.Duration) {
	c.latency = d
}

// Generate returns a single data URL containing a synthetic PNG. Width and
// height parameters are honored so dimension handling can be exercised
// end to end.
func (c *MockClient) Generate(ctx context.Context, prompt string, parameters models.JSONMap) ([]string, error) {
	log.WithFields(log.Fields{
		"model":  c.model,
		"prompt": truncate(prompt, 80),
	}).Info("Mock provider generating image")

	if c.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.latency):
		}
	}

	width := mockDimension(parameters, "width")
	height := mockDimension(parameters, "height")

	var buf bytes.Buffer
	if err := png.Encode(&buf, mockImage(width, height)); err != nil {
		return nil, err
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return []string{dataURL}, nil
}

// Cancel is a no-op for the mock provider; there is no remote task to stop.
func (c *MockClient) Cancel(ctx context.Context, taskID string) (bool, error) {
	log.WithField("task_id", taskID).Debug("Mock provider cancel requested")
	return true, nil
}

// mockImage renders a light blue canvas with a navy frame. The content is
// deterministic for a given size.
func mockImage(width, height int) image.Image {
	fill := color.RGBA{R: 0xAD, G: 0xD8, B: 0xE6, A: 0xFF}
	frame := color.RGBA{R: 0x00, G: 0x00, B: 0x80, A: 0xFF}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < mockFrameWidth || y < mockFrameWidth ||
				x >= width-mockFrameWidth || y >= height-mockFrameWidth {
				img.Set(x, y, frame)
			} else {
				img.Set(x, y, fill)
			}
		}
	}
	return img
}

// mockDimension reads an integer dimension parameter with a sane default.
func mockDimension(params models.JSONMap, key string) int {
	if v, ok := numericParam(params, key); ok && v > 0 {
		return v
	}
	return mockDefaultDimension
}
