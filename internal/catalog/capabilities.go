package catalog

import (
	"strings"

	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// AspectRatios is the fixed set of ratios accepted by the API.
var AspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}

// ValidAspectRatio reports whether ar is one of the recognized ratios.
func ValidAspectRatio(ar string) bool {
	for _, v := range AspectRatios {
		if v == ar {
			return true
		}
	}
	return false
}

// known is the static capability table. Loaded at process start, never
// mutated. Models discovered at runtime that are not listed here fall back
// to Default() via substring matching.
var known = map[string]types.Capabilities{
	"dall-e-2": {
		AspectRatios:       []string{"1:1"},
		MaxImages:          4,
		SupportsGeneration: true,
		SupportsEditing:    true,
		EditMode:           types.EditModeMask,
	},
	"dall-e-3": {
		QualityLevels:      []string{"standard", "hd"},
		AspectRatios:       []string{"1:1", "16:9", "9:16"},
		MaxImages:          1,
		SupportsGeneration: true,
		EditMode:           types.EditModeNone,
	},
	"gpt-image-1": {
		AspectRatios:       []string{"1:1", "16:9", "9:16"},
		MaxImages:          4,
		SupportsGeneration: true,
		SupportsEditing:    true,
		EditMode:           types.EditModeMask,
	},
	"gemini-2.0-flash-preview-image-generation": {
		AspectRatios:       []string{"1:1", "16:9", "9:16", "4:3", "3:4"},
		MaxImages:          4,
		SupportsGeneration: true,
		SupportsEditing:    true,
		EditMode:           types.EditModePrompt,
	},
	"imagen-3.0-generate-002": {
		AspectRatios:       []string{"1:1", "16:9", "9:16", "4:3", "3:4"},
		MaxImages:          4,
		SupportsGeneration: true,
		EditMode:           types.EditModeNone,
	},
}

// Default returns the capabilities assumed for models absent from the
// table: generation only, all ratios, no quality parameter.
func Default() types.Capabilities {
	return types.Capabilities{
		AspectRatios:       append([]string(nil), AspectRatios...),
		MaxImages:          4,
		SupportsGeneration: true,
		EditMode:           types.EditModeNone,
	}
}

// Lookup resolves capabilities for a model id. Exact match first, then a
// substring match against known ids (proxy model ids often carry a
// "vendor/" prefix), then Default.
func Lookup(modelID string) types.Capabilities {
	if c, ok := known[modelID]; ok {
		return c
	}
	lower := strings.ToLower(modelID)
	for id, c := range known {
		if strings.Contains(lower, id) {
			return c
		}
	}
	return Default()
}

// InferProvider attributes a model id to the vendor behind it. Ids that
// match no known family are only reachable through the proxy.
func InferProvider(modelID string) types.Provider {
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "dall-e"), strings.Contains(lower, "gpt-image"):
		return types.ProviderOpenAI
	case strings.Contains(lower, "gemini"), strings.Contains(lower, "imagen"):
		return types.ProviderGemini
	}
	return types.ProviderProxy
}

// IsGeminiModel reports whether the id names a Gemini/Imagen model.
func IsGeminiModel(modelID string) bool {
	return InferProvider(modelID) == types.ProviderGemini
}

// NormalizeGeminiModel strips the proxy's "gemini/" routing prefix so the
// id can be used against the direct Gemini API.
func NormalizeGeminiModel(modelID string) string {
	return strings.TrimPrefix(modelID, "gemini/")
}
