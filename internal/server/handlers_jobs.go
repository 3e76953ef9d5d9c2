package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjacquet/mediagen/internal/metrics"
	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// estimatedGenerationTime is the optimistic completion estimate returned at
// submission.
const estimatedGenerationTime = 60 * time.Second

// createJobBody is the POST /jobs/generate payload.
type createJobBody struct {
	Prompt     string         `json:"prompt" validate:"required"`
	Parameters models.JSONMap `json:"parameters"`
	WebhookURL string         `json:"webhook_url" validate:"omitempty,url"`
	Metadata   models.JSONMap `json:"metadata"`
}

// jobResponse augments the job record with derived fields.
type jobResponse struct {
	*models.Job
	Progress        float64       `json:"progress"`
	DurationSeconds *float64      `json:"duration_seconds,omitempty"`
	Media           *mediaSummary `json:"media,omitempty"`
}

// mediaSummary is the artifact digest embedded in job responses.
type mediaSummary struct {
	ID            uuid.UUID `json:"id"`
	URL           string    `json:"url"`
	MimeType      *string   `json:"mime_type,omitempty"`
	FileSizeBytes *int64    `json:"file_size_bytes,omitempty"`
	Width         *int      `json:"width,omitempty"`
	Height        *int      `json:"height,omitempty"`
}

// createJobResponse is the 201 body for a submitted job. StatusURL points at
// the polling endpoint so clients need not build it themselves.
type createJobResponse struct {
	*models.Job
	StatusURL               string    `json:"status_url"`
	EstimatedCompletionTime time.Time `json:"estimated_completion_time"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body createJobBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "validation_error", "request body is not valid JSON")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	job, err := s.jobs.Create(r.Context(), service.CreateJobRequest{
		Prompt:     body.Prompt,
		Parameters: body.Parameters,
		WebhookURL: body.WebhookURL,
		Metadata:   body.Metadata,
		ClientIP:   r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	metrics.JobsCreated.Inc()
	writeJSON(w, http.StatusCreated, createJobResponse{
		Job:                     job,
		StatusURL:               "/jobs/status/" + job.ID.String(),
		EstimatedCompletionTime: job.CreatedAt.Add(estimatedGenerationTime),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.jobView(r, job))
}

// jobView builds the job response with derived fields and, for completed
// jobs, the artifact digest. A failed media lookup degrades to a response
// without the digest rather than failing the whole request.
func (s *Server) jobView(r *http.Request, job *models.Job) jobResponse {
	resp := jobResponse{
		Job:             job,
		Progress:        job.Progress(),
		DurationSeconds: job.DurationSeconds(),
	}
	if job.MediaID != nil {
		if media, err := s.media.Get(r.Context(), *job.MediaID); err == nil {
			resp.Media = &mediaSummary{
				ID:            media.ID,
				URL:           "/media/" + media.ID.String(),
				MimeType:      media.MimeType,
				FileSizeBytes: media.FileSizeBytes,
				Width:         media.Width,
				Height:        media.Height,
			}
		}
	}
	return resp
}

// listJobsResponse is the paginated job listing.
type listJobsResponse struct {
	Jobs    []jobResponse `json:"jobs"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	Pages   int           `json:"pages"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)
	status := models.JobStatus(r.URL.Query().Get("status"))

	jobs, total, err := s.jobs.List(r.Context(), status, page, perPage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		views = append(views, s.jobView(r, &jobs[i]))
	}

	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:    views,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if _, err := s.jobs.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	metrics.JobsCancelled.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// parseID extracts the {id} route parameter as a UUID, writing a 404 when it
// does not parse. Unparseable ids and unknown ids are indistinguishable to
// clients.
func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", "no such resource")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
