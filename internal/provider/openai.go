package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielcopper/openapi-image-gen/internal/catalog"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

const openaiBaseURL = "https://api.openai.com"

// openaiSizes is the per-model aspect ratio mapping. The families differ:
// dall-e-2 only does squares, gpt-image-1 uses 1536-wide landscapes.
var openaiSizes = map[string]map[string]string{
	"dall-e-2": {
		"1:1": "1024x1024", "16:9": "1024x1024", "9:16": "1024x1024",
		"4:3": "1024x1024", "3:4": "1024x1024",
	},
	"dall-e-3": {
		"1:1": "1024x1024", "16:9": "1792x1024", "9:16": "1024x1792",
		"4:3": "1792x1024", "3:4": "1024x1792",
	},
	"gpt-image-1": {
		"1:1": "1024x1024", "16:9": "1536x1024", "9:16": "1024x1536",
		"4:3": "1536x1024", "3:4": "1024x1536",
	},
}

// OpenAI is the direct vendor adapter for the OpenAI Images API, used as
// the fallback target for OpenAI-family models.
type OpenAI struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     zerolog.Logger
}

// NewOpenAI builds the adapter. baseURL may be empty to use the public API.
func NewOpenAI(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *OpenAI {
	if baseURL == "" {
		baseURL = openaiBaseURL
	}
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      httpClient(timeout),
		log:     log,
	}
}

func (o *OpenAI) Name() types.Provider { return types.ProviderOpenAI }

// Generate issues an images/generations call against OpenAI directly.
func (o *OpenAI) Generate(ctx context.Context, gp GenerateParams) (*types.GenerationResult, error) {
	caps := catalog.Lookup(gp.Model)
	n := clampN(gp.N, caps.MaxImages)
	if n != gp.N {
		o.log.Warn().Str("model", gp.Model).Int("requested", gp.N).Int("using", n).Msg("clamping image count to model maximum")
	}

	payload := imagesRequest{
		Model:          gp.Model,
		Prompt:         gp.Prompt,
		N:              n,
		Size:           o.size(gp.Model, gp.AspectRatio),
		ResponseFormat: "b64_json",
	}
	if len(caps.QualityLevels) > 0 && gp.Quality != "" {
		payload.Quality = gp.Quality
	}

	resp, err := postJSON(ctx, o.hc, o.baseURL+"/v1/images/generations", o.apiKey, payload, types.ProviderOpenAI, gp.Model)
	if err != nil {
		return nil, err
	}
	ir, _, err := readImages(resp, types.ProviderOpenAI, gp.Model)
	if err != nil {
		return nil, err
	}
	images, err := decodeImages(ir, types.ProviderOpenAI, gp.Model)
	if err != nil {
		return nil, err
	}
	return &types.GenerationResult{
		Images:   images,
		Provider: types.ProviderOpenAI,
		Model:    gp.Model,
	}, nil
}

// Edit issues a mask-based images/edits call against OpenAI directly.
func (o *OpenAI) Edit(ctx context.Context, ep EditParams) (*types.GenerationResult, error) {
	caps := catalog.Lookup(ep.Model)
	n := clampN(ep.N, caps.MaxImages)

	buf, contentType, err := editForm(ep, n)
	if err != nil {
		return nil, Wrap(KindValidation, types.ProviderOpenAI, ep.Model, err, "encode edit form")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/images/edits", buf)
	if err != nil {
		return nil, Wrap(KindProviderUnavailable, types.ProviderOpenAI, ep.Model, err, "build request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	ir, _, err := doImages(o.hc, req, types.ProviderOpenAI, ep.Model)
	if err != nil {
		return nil, err
	}
	images, err := decodeImages(ir, types.ProviderOpenAI, ep.Model)
	if err != nil {
		return nil, err
	}
	return &types.GenerationResult{
		Images:   images,
		Provider: types.ProviderOpenAI,
		Model:    ep.Model,
	}, nil
}

// Health reports whether the key is set and the API answers within the
// probe timeout.
func (o *OpenAI) Health(ctx context.Context) bool {
	if o.apiKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ListModels is unsupported for direct vendors; their catalog is static.
func (o *OpenAI) ListModels(ctx context.Context) ([]types.ModelInfo, error) {
	return nil, nil
}

func (o *OpenAI) size(model, aspectRatio string) string {
	sizes, ok := openaiSizes[model]
	if !ok {
		sizes = openaiSizes["gpt-image-1"]
	}
	if s, ok := sizes[aspectRatio]; ok {
		return s
	}
	return "1024x1024"
}
