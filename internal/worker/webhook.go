package worker

import (
	"context"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

const webhookTimeout = 10 * time.Second

// Webhook event names.
const (
	webhookEventCompleted = "job.completed"
	webhookEventFailed    = "job.failed"
)

// webhookPayload is the notification body POSTed to the client's webhook URL.
type webhookPayload struct {
	Event        string         `json:"event"`
	JobID        string         `json:"job_id"`
	Status       string         `json:"status"`
	MediaID      *string        `json:"media_id,omitempty"`
	MediaURL     *string        `json:"media_url,omitempty"`
	Error        *string        `json:"error,omitempty"`
	ErrorDetails models.JSONMap `json:"error_details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// notifier delivers terminal-state webhooks. Delivery is fire-and-forget:
// one attempt, failures logged and dropped.
type notifier struct {
	client *resty.Client
}

func newNotifier() *notifier {
	return &notifier{
		client: resty.New().SetTimeout(webhookTimeout),
	}
}

// notifyCompleted reports a successful job, including the artifact reference.
func (n *notifier) notifyCompleted(ctx context.Context, job *models.Job, media *models.Media) {
	url := job.WebhookURL()
	if url == "" {
		return
	}

	mediaID := media.ID.String()
	// Backends without a public URL (local storage) fall back to the API
	// download path.
	mediaURL := media.StorageURL
	if mediaURL == nil {
		downloadPath := "/media/" + mediaID
		mediaURL = &downloadPath
	}
	payload := webhookPayload{
		Event:     webhookEventCompleted,
		JobID:     job.ID.String(),
		Status:    string(job.Status),
		MediaID:   &mediaID,
		MediaURL:  mediaURL,
		Timestamp: time.Now().UTC(),
	}
	n.send(ctx, url, job, payload)
}

// notifyFailed reports a permanently failed job.
func (n *notifier) notifyFailed(ctx context.Context, job *models.Job) {
	url := job.WebhookURL()
	if url == "" {
		return
	}

	payload := webhookPayload{
		Event:        webhookEventFailed,
		JobID:        job.ID.String(),
		Status:       string(job.Status),
		Error:        job.ErrorMessage,
		ErrorDetails: job.ErrorDetails,
		Timestamp:    time.Now().UTC(),
	}
	n.send(ctx, url, job, payload)
}

func (n *notifier) send(ctx context.Context, url string, job *models.Job, payload webhookPayload) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		log.WithFields(log.Fields{"job_id": job.ID, "error": err.Error()}).
			Warn("Webhook delivery failed")
		return
	}
	if resp.IsError() {
		log.WithFields(log.Fields{"job_id": job.ID, "status": resp.StatusCode()}).
			Warn("Webhook endpoint returned an error")
		return
	}
	log.WithFields(log.Fields{"job_id": job.ID, "event": payload.Event}).
		Debug("Delivered webhook")
}
