package gateway

import (
	"strings"

	"github.com/danielcopper/openapi-image-gen/internal/catalog"
	"github.com/danielcopper/openapi-image-gen/internal/provider"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// validateGenerate checks a generation request against the resolved
// model's capabilities. Pure: no I/O, no blocking.
func validateGenerate(req types.GenerationRequest, model types.ModelInfo) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.E(provider.KindValidation, "prompt is required")
	}
	caps := model.Capabilities
	if !caps.SupportsGeneration {
		return provider.Ef(provider.KindValidation, "model %s does not support generation", model.ID)
	}
	if !catalog.ValidAspectRatio(req.AspectRatio) {
		return provider.Ef(provider.KindUnsupportedAspectRatio, "unknown aspect ratio %q", req.AspectRatio)
	}
	if !caps.SupportsAspectRatio(req.AspectRatio) {
		return provider.Ef(provider.KindUnsupportedAspectRatio,
			"model %s does not support aspect ratio %s (supported: %s)",
			model.ID, req.AspectRatio, strings.Join(caps.AspectRatios, ", "))
	}
	if req.Quality != "" && !caps.SupportsQuality(req.Quality) {
		return provider.Ef(provider.KindUnsupportedQuality,
			"model %s does not support quality %q (supported: %s)",
			model.ID, req.Quality, strings.Join(caps.QualityLevels, ", "))
	}
	if req.N < 1 || req.N > caps.MaxImages {
		return provider.Ef(provider.KindInvalidCount,
			"n must be between 1 and %d for model %s", caps.MaxImages, model.ID)
	}
	return nil
}

// validateEdit checks an edit request against the resolved model. The
// image source invariant (bytes XOR URL) is enforced here, before any
// adapter is reached.
func validateEdit(req types.EditRequest, model types.ModelInfo) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.E(provider.KindValidation, "prompt is required")
	}
	if len(req.Image) == 0 && req.ImageURL == "" {
		return provider.E(provider.KindValidation, "either image bytes or image_url must be provided")
	}
	if len(req.Image) > 0 && req.ImageURL != "" {
		return provider.E(provider.KindValidation, "image bytes and image_url are mutually exclusive")
	}
	caps := model.Capabilities
	if !caps.SupportsEditing {
		return provider.Ef(provider.KindValidation, "model %s does not support editing", model.ID)
	}
	switch caps.EditMode {
	case types.EditModeMask:
		if len(req.Mask) == 0 {
			return provider.Ef(provider.KindMissingMask, "model %s requires a mask for editing", model.ID)
		}
	default:
		if len(req.Mask) > 0 {
			return provider.Ef(provider.KindValidation, "model %s does not accept a mask", model.ID)
		}
	}
	if req.N < 1 || req.N > caps.MaxImages {
		return provider.Ef(provider.KindInvalidCount,
			"n must be between 1 and %d for model %s", caps.MaxImages, model.ID)
	}
	return nil
}
