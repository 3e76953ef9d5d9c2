package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
)

// Download failure modes. The retry policy distinguishes transient transport
// problems from payloads that will never decode.
var (
	ErrDownloadTimeout    = errors.New("worker: download timed out")
	ErrNetworkUnreachable = errors.New("worker: network unreachable")
	ErrHTTPStatus         = errors.New("worker: unexpected response status")
	ErrDecodeFailed       = errors.New("worker: payload decode failed")
)

const (
	downloadConnectTimeout = 10 * time.Second
	downloadTotalTimeout   = 60 * time.Second

	// maxDownloadBytes caps the artifact size accepted from the provider.
	maxDownloadBytes = 100 << 20
)

// dataURLPattern matches inline artifacts of the form
// data:<mime>;base64,<payload>.
var dataURLPattern = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)

// downloader fetches provider output, whether delivered inline as a data URL
// or hosted on the provider's CDN.
type downloader struct {
	client *resty.Client
}

func newDownloader() *downloader {
	client := resty.New().
		SetTimeout(downloadTotalTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	dialer := &net.Dialer{Timeout: downloadConnectTimeout}
	client.GetClient().Transport = &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: downloadConnectTimeout,
	}

	return &downloader{client: client}
}

// fetch returns the artifact bytes and MIME type for the given output URL.
func (d *downloader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if m := dataURLPattern.FindStringSubmatch(rawURL); m != nil {
		content, err := base64.StdEncoding.DecodeString(m[2])
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid base64 in data URL: %v", ErrDecodeFailed, err)
		}
		return content, m[1], nil
	}

	resp, err := d.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, "", fmt.Errorf("%w: %v", ErrDownloadTimeout, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", fmt.Errorf("%w: %v", ErrDownloadTimeout, err)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("%w: status %d from %s", ErrHTTPStatus, resp.StatusCode(), rawURL)
	}

	content := resp.Body()
	if len(content) == 0 {
		return nil, "", fmt.Errorf("%w: empty response body", ErrDecodeFailed)
	}
	if len(content) > maxDownloadBytes {
		return nil, "", fmt.Errorf("%w: artifact exceeds %d bytes", ErrDecodeFailed, maxDownloadBytes)
	}

	return content, resp.Header().Get("Content-Type"), nil
}
