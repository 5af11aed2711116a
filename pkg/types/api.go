package types

// ResponseFormat selects how a generation result is rendered.
type ResponseFormat string

const (
	// FormatURL returns a reference to the stored image.
	FormatURL ResponseFormat = "url"
	// FormatBase64 embeds the image bytes in the response.
	FormatBase64 ResponseFormat = "base64"
	// FormatMarkdown returns ready-to-paste markdown with the image URL.
	FormatMarkdown ResponseFormat = "markdown"
)

// GenerationRequest is the payload for POST /generate.
type GenerationRequest struct {
	// Required description of the image to generate.
	// example: A serene mountain landscape at sunset
	Prompt string `json:"prompt" example:"A serene mountain landscape at sunset"`
	// Backend to use: proxy (default), openai, or gemini.
	// example: proxy
	Provider Provider `json:"provider,omitempty" example:"proxy"`
	// Optional model id. If empty, the configured default or the first
	// registry model for the provider is used.
	// example: dall-e-3
	Model string `json:"model,omitempty" example:"dall-e-3"`
	// Aspect ratio: 1:1, 16:9, 9:16, 4:3 or 3:4. Defaults to 1:1.
	// example: 16:9
	AspectRatio string `json:"aspect_ratio,omitempty" example:"16:9"`
	// Quality level for models that support one (e.g. standard, hd).
	// example: standard
	Quality string `json:"quality,omitempty" example:"standard"`
	// Number of images to generate. Defaults to 1; upper bound is
	// model-dependent.
	// example: 1
	N int `json:"n,omitempty" example:"1"`
	// Response rendering: url (default), base64 or markdown.
	// example: url
	ResponseFormat ResponseFormat `json:"response_format,omitempty" example:"url"`
}

// EditRequest is the normalized payload for POST /edit. The transport
// layer decodes the multipart form into this shape before dispatch.
type EditRequest struct {
	// Required description of the edit to make.
	// example: Make the sky more dramatic
	Prompt string `json:"prompt" example:"Make the sky more dramatic"`
	// Backend to use: proxy (default), openai, or gemini.
	// example: proxy
	Provider Provider `json:"provider,omitempty" example:"proxy"`
	// Optional model id; a default editing-capable model is chosen when empty.
	// example: gpt-image-1
	Model string `json:"model,omitempty" example:"gpt-image-1"`
	// Raw source image bytes. Mutually exclusive with ImageURL.
	Image []byte `json:"-"`
	// URL of the source image. Mutually exclusive with Image.
	// example: http://localhost:8080/images/2f1e.png
	ImageURL string `json:"image_url,omitempty"`
	// Optional mask bytes; only meaningful for mask-based edit models.
	Mask []byte `json:"-"`
	// Number of variations to generate.
	// example: 1
	N int `json:"n,omitempty" example:"1"`
	// Response rendering: url (default), base64 or markdown.
	// example: url
	ResponseFormat ResponseFormat `json:"response_format,omitempty" example:"url"`
}

// ImageResponse is the rendered result of a generate or edit call.
type ImageResponse struct {
	// URL of the first generated image (url and markdown formats).
	// example: http://localhost:8080/images/2f1e.png
	ImageURL string `json:"image_url,omitempty"`
	// Base64 payload of the first image (base64 format).
	ImageBase64 string `json:"image_base64,omitempty"`
	// MIME type of the image.
	// example: image/png
	MIMEType string `json:"mime_type,omitempty"`
	// Ready-to-paste markdown (markdown format).
	// example: ![Generated image](http://localhost:8080/images/2f1e.png)
	Markdown string `json:"markdown,omitempty"`
	// Prompt used for the generation.
	Prompt string `json:"prompt"`
	// Model that served the request.
	// example: dall-e-3
	Model string `json:"model"`
	// Provider that served the request.
	// example: proxy
	Provider Provider `json:"provider"`
	// True when the direct-vendor fallback path was taken.
	// example: false
	FallbackUsed bool `json:"fallback_used"`
	// Additional generation metadata (all URLs, n, aspect ratio...).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ModelListResponse is returned by GET /models.
type ModelListResponse struct {
	// Available models across providers.
	Models []ModelInfo `json:"models"`
	// Whether the list was served from the registry cache.
	// example: true
	Cached bool `json:"cached"`
	// Seconds until the cache expires; zero when not yet populated.
	// example: 3599
	CacheExpiresIn int64 `json:"cache_expires_in"`
}

// RefreshRequest is the payload for POST /models/refresh.
type RefreshRequest struct {
	// Force a refresh even when the cache is still valid.
	// example: true
	Force bool `json:"force"`
}

// HealthResponse reports per-backend availability for GET /health.
type HealthResponse struct {
	// Overall status: ok when at least one backend is reachable.
	// example: ok
	Status string `json:"status" example:"ok"`
	// Proxy backend reachable.
	// example: true
	Proxy bool `json:"proxy"`
	// OpenAI direct access configured and reachable.
	// example: false
	OpenAI bool `json:"openai"`
	// Gemini direct access configured and reachable.
	// example: false
	Gemini bool `json:"gemini"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: dall-e-9
	Error string `json:"error" example:"model not found: dall-e-9"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
	// Machine-readable error kind.
	// example: model_not_found
	Kind string `json:"kind,omitempty" example:"model_not_found"`
	// Providers attempted before the request failed.
	// example: ["proxy","gemini"]
	Attempted []Provider `json:"attempted,omitempty"`
}
