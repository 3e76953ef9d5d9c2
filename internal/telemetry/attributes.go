package telemetry

// HTTP semantic convention attributes
const (
	AttrHTTPMethod                = "http.method"
	AttrHTTPURL                   = "http.url"
	AttrHTTPStatusCode            = "http.status_code"
	AttrHTTPResponseContentLength = "http.response_content_length"
	AttrHTTPDurationMS            = "http.duration_ms"
)

// Job pipeline attributes
const (
	AttrJobID         = "job.id"
	AttrJobStatus     = "job.status"
	AttrJobRetryCount = "job.retry_count"
	AttrJobDurationMS = "job.duration_ms"
)

// Provider attributes
const (
	AttrProviderModel      = "provider.model"
	AttrProviderTaskID     = "provider.task_id"
	AttrProviderOutputURLs = "provider.output_urls"
)

// Storage attributes
const (
	AttrStorageBackend = "storage.backend"
	AttrStorageKey     = "storage.key"
	AttrStorageBytes   = "storage.bytes"
)

// Error attributes
const (
	AttrError = "error"
)
