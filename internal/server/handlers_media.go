package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fjacquet/mediagen/internal/models"
	log "github.com/sirupsen/logrus"
)

// mediaCacheControl allows shared caches to hold immutable artifacts for an
// hour.
const mediaCacheControl = "public, max-age=3600"

func (s *Server) handleDownloadMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	media, err := s.media.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Objects with a public URL on remote storage are served by redirect so
	// the API never proxies large payloads it does not have to.
	if media.StorageProvider == models.StorageS3 && media.StorageURL != nil && !media.IsExpired() {
		w.Header().Set("Cache-Control", mediaCacheControl)
		http.Redirect(w, r, *media.StorageURL, http.StatusFound)
		return
	}

	media, body, size, err := s.media.Download(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer body.Close()

	mime := "application/octet-stream"
	if media.MimeType != nil {
		mime = *media.MimeType
	}
	filename := media.ID.String() + media.Extension()

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Cache-Control", mediaCacheControl)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if _, err := io.Copy(w, body); err != nil {
		// Headers are already on the wire; log and let the connection drop.
		log.WithFields(log.Fields{"media_id": id, "error": err.Error()}).
			Warn("Streaming artifact aborted")
	}
}

func (s *Server) handleMediaInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	media, err := s.media.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, media)
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.media.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
