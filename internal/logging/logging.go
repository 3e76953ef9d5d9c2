// Package logging provides centralized logging configuration using logrus.
// It sets up structured JSON logging to stdout and a log file, and carries
// a helper for job-scoped log entries.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// serviceName is attached as a field to all log entries for identification.
const serviceName = "mediagen"

// WithJob returns a log entry carrying the job id field, so every log line of
// a pipeline run can be correlated with the job it processed.
func WithJob(jobID string) *log.Entry {
	return log.WithFields(log.Fields{"service": serviceName, "job_id": jobID})
}

// PrepareLogs initializes the logging system with the specified log file.
// It configures logging to write to both stdout and the log file with JSON
// formatting.
//
// Returns an error if the log file cannot be opened or created.
func PrepareLogs(logName string) error {
	logFile, err := os.OpenFile(logName, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	log.SetFormatter(&log.JSONFormatter{})
	return nil
}

// SetDebug raises the log level to Debug when enabled, and restores Info
// otherwise.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
