package worker

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDataURL(t *testing.T) {
	d := newDownloader()
	content := []byte("fake png bytes")
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(content)

	got, mime, err := d.fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, "image/png", mime)
}

func TestFetchDataURLBadBase64(t *testing.T) {
	d := newDownloader()

	_, _, err := d.fetch(context.Background(), "data:image/png;base64,???not-base64???")
	assert.ErrorIs(t, err, ErrDecodeFailed)
}

func TestFetchHTTP(t *testing.T) {
	content := []byte("jpeg bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(content)
	}))
	defer server.Close()

	d := newDownloader()
	got, mime, err := d.fetch(context.Background(), server.URL+"/out.jpg")
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, "image/jpeg", mime)
}

func TestFetchHTTPFollowsRedirect(t *testing.T) {
	content := []byte("bytes")
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/redirect" {
			http.Redirect(w, r, target.URL+"/final", http.StatusFound)
			return
		}
		_, _ = w.Write(content)
	}))
	defer target.Close()

	d := newDownloader()
	got, _, err := d.fetch(context.Background(), target.URL+"/redirect")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFetchHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	d := newDownloader()
	_, _, err := d.fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrHTTPStatus)
}

func TestFetchHTTPUnreachable(t *testing.T) {
	d := newDownloader()

	// Reserved TEST-NET address, nothing listens there.
	_, _, err := d.fetch(context.Background(), "http://127.0.0.1:1/out.png")
	assert.ErrorIs(t, err, ErrNetworkUnreachable)
}

func TestExtensionForMime(t *testing.T) {
	tests := []struct {
		mime string
		ext  string
	}{
		{"image/png", ".png"},
		{"image/jpeg", ".jpg"},
		{"image/jpeg; charset=binary", ".jpg"},
		{"image/gif", ".gif"},
		{"image/webp", ".webp"},
		{"video/mp4", ".mp4"},
		{"audio/mpeg", ".mp3"},
		{"application/octet-stream", ".bin"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ext, extensionForMime(tt.mime), tt.mime)
	}
}

func TestMediaTypeForMime(t *testing.T) {
	assert.Equal(t, "image", mediaTypeForMime("image/png"))
	assert.Equal(t, "video", mediaTypeForMime("video/mp4"))
	assert.Equal(t, "audio", mediaTypeForMime("audio/mpeg"))
	assert.Equal(t, "image", mediaTypeForMime("application/octet-stream"))
}
