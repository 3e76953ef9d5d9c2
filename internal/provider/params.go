package provider

import (
	"strings"

	"github.com/fjacquet/mediagen/internal/models"
	log "github.com/sirupsen/logrus"
)

// modelClass groups models by the parameter surface they accept.
type modelClass int

const (
	// classDefault passes all non-nil parameters through unchanged.
	classDefault modelClass = iota

	// classFastInference is the distilled-model class (schnell/turbo/
	// lightning variants): a small whitelist with a hard step cap.
	classFastInference

	// classFullFeature accepts the complete diffusion parameter set.
	classFullFeature
)

// maxFastInferenceSteps is the step ceiling for fast-inference models.
// Providers reject higher values, so they are clamped with a warning
// rather than failing the job.
const maxFastInferenceSteps = 4

// fastInferenceAllowed is the parameter whitelist for the fast-inference
// class. Everything else (width, height, guidance_scale, negative_prompt,
// scheduler, num_outputs) is dropped.
var fastInferenceAllowed = map[string]bool{
	"num_inference_steps": true,
	"seed":                true,
	"aspect_ratio":        true,
	"output_quality":      true,
}

// fullFeatureMarkers identify models that accept the complete parameter set.
var fullFeatureMarkers = []string{"sdxl", "stable-diffusion", "flux-dev", "flux-pro"}

// fastInferenceMarkers identify distilled fast-inference models.
var fastInferenceMarkers = []string{"schnell", "turbo", "lightning"}

// classifyModel derives the parameter class from the model identifier
// <owner>/<name>[:<version>].
func classifyModel(model string) modelClass {
	name := strings.ToLower(model)
	if idx := strings.Index(name, ":"); idx >= 0 {
		name = name[:idx]
	}
	for _, marker := range fastInferenceMarkers {
		if strings.Contains(name, marker) {
			return classFastInference
		}
	}
	for _, marker := range fullFeatureMarkers {
		if strings.Contains(name, marker) {
			return classFullFeature
		}
	}
	return classDefault
}

// CleanParams filters and clamps the opaque parameter payload for the given
// model before submission. Cleaning is idempotent: applying it twice yields
// the same payload.
//
// Fast-inference models keep only the whitelisted keys and have
// num_inference_steps clamped to 4; full-feature and unknown models pass all
// non-nil parameters through.
func CleanParams(model string, params models.JSONMap) models.JSONMap {
	cleaned := make(models.JSONMap, len(params))

	class := classifyModel(model)
	for key, value := range params {
		if value == nil {
			continue
		}
		if class == classFastInference && !fastInferenceAllowed[key] {
			log.WithFields(log.Fields{"model": model, "param": key}).
				Debug("Dropping parameter not supported by fast-inference model")
			continue
		}
		cleaned[key] = value
	}

	if class == classFastInference {
		if steps, ok := numericParam(cleaned, "num_inference_steps"); ok && steps > maxFastInferenceSteps {
			log.WithFields(log.Fields{"model": model, "requested": steps, "clamped": maxFastInferenceSteps}).
				Warn("Clamping num_inference_steps for fast-inference model")
			cleaned["num_inference_steps"] = maxFastInferenceSteps
		}
	}

	return cleaned
}

// numericParam reads a parameter that may have arrived as any JSON numeric
// representation and returns it as an int.
func numericParam(params models.JSONMap, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
