package types

// Provider identifies an image generation backend.
type Provider string

const (
	// ProviderProxy routes through the OpenAI-compatible cost-tracking proxy.
	ProviderProxy Provider = "proxy"
	// ProviderOpenAI calls the OpenAI Images API directly.
	ProviderOpenAI Provider = "openai"
	// ProviderGemini calls the Google Gemini API directly.
	ProviderGemini Provider = "gemini"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderProxy, ProviderOpenAI, ProviderGemini:
		return true
	}
	return false
}

// EditMode describes how a model accepts edit instructions.
type EditMode string

const (
	// EditModeNone means the model cannot edit images.
	EditModeNone EditMode = "none"
	// EditModeMask means edits are driven by a transparency mask (inpainting).
	EditModeMask EditMode = "mask"
	// EditModePrompt means edits are described in the prompt only.
	EditModePrompt EditMode = "prompt"
)

// Capabilities describes what a model supports. Loaded from the static
// capability table at startup and never mutated.
type Capabilities struct {
	// Quality levels the model accepts. Empty means the quality
	// parameter is ignored by the model.
	// example: ["standard","hd"]
	QualityLevels []string `json:"quality_levels,omitempty"`
	// Supported aspect ratios.
	// example: ["1:1","16:9","9:16"]
	AspectRatios []string `json:"aspect_ratios"`
	// Maximum value for the n parameter.
	// example: 4
	MaxImages int `json:"max_images"`
	// Whether the model can generate images from a prompt.
	// example: true
	SupportsGeneration bool `json:"supports_generation"`
	// Whether the model can edit an existing image.
	// example: false
	SupportsEditing bool `json:"supports_editing"`
	// How the model accepts edit instructions (none, mask, prompt).
	// example: mask
	EditMode EditMode `json:"edit_mode"`
}

// SupportsAspectRatio reports whether ar is in the supported set.
func (c Capabilities) SupportsAspectRatio(ar string) bool {
	for _, v := range c.AspectRatios {
		if v == ar {
			return true
		}
	}
	return false
}

// SupportsQuality reports whether q is accepted. An empty level set means
// the parameter is ignored by the model, so anything passes.
func (c Capabilities) SupportsQuality(q string) bool {
	if len(c.QualityLevels) == 0 {
		return true
	}
	for _, v := range c.QualityLevels {
		if v == q {
			return true
		}
	}
	return false
}

// ModelInfo describes a model available through one of the providers.
// Instances are built by the registry on refresh and are immutable.
type ModelInfo struct {
	// Model identifier, unique within the provider namespace.
	// example: dall-e-3
	ID string `json:"id" example:"dall-e-3"`
	// Provider offering this model.
	// example: openai
	Provider Provider `json:"provider" example:"openai"`
	// Capabilities of the model.
	Capabilities Capabilities `json:"capabilities"`
}

// Image is a single produced image. URL points at the stored copy when
// local storage is enabled; Data holds the raw bytes for inline responses
// and is never serialized directly.
type Image struct {
	// Public URL to the stored image.
	// example: http://localhost:8080/images/2f1e.png
	URL string `json:"url,omitempty"`
	// Raw image bytes. Omitted from JSON.
	Data []byte `json:"-"`
	// MIME type of the image.
	// example: image/png
	MIME string `json:"mime_type,omitempty"`
}

// Usage carries optional cost/usage metadata reported by the proxy.
type Usage struct {
	// Cost in USD as reported by the proxy, if available.
	// example: 0.04
	CostUSD float64 `json:"cost_usd,omitempty"`
	// Total tokens billed, for token-metered image models.
	// example: 4160
	TotalTokens int64 `json:"total_tokens,omitempty"`
}

// GenerationResult is the normalized outcome of a generate or edit call.
// Constructed by a provider adapter, enriched by the dispatcher, and
// handed to the formatter immutably.
type GenerationResult struct {
	// Produced images in generation order.
	Images []Image `json:"images"`
	// Provider that actually served the request.
	// example: gemini
	Provider Provider `json:"provider" example:"gemini"`
	// Model that actually served the request.
	// example: gemini-2.0-flash-preview-image-generation
	Model string `json:"model"`
	// True when the request was re-routed to a direct vendor adapter.
	// example: false
	FallbackUsed bool `json:"fallback_used"`
	// Optional cost/usage metadata from the proxy.
	Usage *Usage `json:"usage,omitempty"`
}
