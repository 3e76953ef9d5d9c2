package worker

import (
	"bytes"
	"image"
	"strings"

	// Register decoders for the formats providers deliver.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	log "github.com/sirupsen/logrus"
)

// imageDimensions extracts width and height from the artifact bytes.
// Extraction is best-effort: an undecodable image yields nil dimensions,
// never a pipeline failure.
func imageDimensions(content []byte) (width, height *int) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		log.WithField("error", err.Error()).Debug("Could not extract image dimensions")
		return nil, nil
	}
	log.WithFields(log.Fields{"format": format, "width": cfg.Width, "height": cfg.Height}).
		Debug("Extracted image dimensions")
	return &cfg.Width, &cfg.Height
}

// extensionForMime maps the artifact MIME type to a file extension.
func extensionForMime(mime string) string {
	// Strip parameters such as "; charset=...".
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	switch strings.TrimSpace(strings.ToLower(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".bin"
	}
}

// mediaTypeForMime maps the MIME type to the artifact kind.
func mediaTypeForMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	default:
		return "image"
	}
}
