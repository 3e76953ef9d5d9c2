package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientGenerate(t *testing.T) {
	client := NewMockClient("black-forest-labs/flux-schnell")
	client.SetLatency(0)

	urls, err := client.Generate(context.Background(), "a lighthouse at dusk", nil)
	require.NoError(t, err)
	require.Len(t, urls, 1)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(urls[0], prefix), "output should be a PNG data URL")

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(urls[0], prefix))
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 1024, cfg.Height)
}

func TestMockClientGenerateHonorsDimensions(t *testing.T) {
	client := NewMockClient("black-forest-labs/flux-schnell")
	client.SetLatency(0)

	urls, err := client.Generate(context.Background(), "test", models.JSONMap{
		"width":  float64(640),
		"height": float64(480),
	})
	require.NoError(t, err)
	require.Len(t, urls, 1)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(urls[0], "data:image/png;base64,"))
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
}

func TestMockClientGenerateDeterministic(t *testing.T) {
	client := NewMockClient("black-forest-labs/flux-schnell")
	client.SetLatency(0)

	first, err := client.Generate(context.Background(), "same prompt", nil)
	require.NoError(t, err)
	second, err := client.Generate(context.Background(), "same prompt", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMockClientGenerateRespectsContext(t *testing.T) {
	client := NewMockClient("black-forest-labs/flux-schnell")
	client.SetLatency(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Generate(ctx, "test", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockClientCancel(t *testing.T) {
	client := NewMockClient("black-forest-labs/flux-schnell")

	ok, err := client.Cancel(context.Background(), "task-id")
	assert.NoError(t, err)
	assert.True(t, ok)
}
