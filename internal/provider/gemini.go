package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielcopper/openapi-image-gen/internal/catalog"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// Gemini wire shapes for generateContent with image output.

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspect_ratio"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"response_modalities"`
	ImageConfig        *geminiImageConfig `json:"image_config,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generation_config"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MIMEType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Gemini is the direct vendor adapter for the Google Gemini API. It is
// the fallback target when the proxy cannot express a Gemini feature,
// most notably non-square aspect ratios.
type Gemini struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     zerolog.Logger
}

// NewGemini builds the adapter. baseURL may be empty to use the public API.
func NewGemini(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Gemini {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &Gemini{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      httpClient(timeout),
		log:     log,
	}
}

func (g *Gemini) Name() types.Provider { return types.ProviderGemini }

// Generate produces images via generateContent. The API returns one image
// per call, so n is satisfied by issuing n sequential calls.
func (g *Gemini) Generate(ctx context.Context, gp GenerateParams) (*types.GenerationResult, error) {
	model := catalog.NormalizeGeminiModel(gp.Model)
	caps := catalog.Lookup(model)
	n := clampN(gp.N, caps.MaxImages)

	var images []types.Image
	for i := 0; i < n; i++ {
		imgs, err := g.generateOne(ctx, model, gp.AspectRatio, []geminiPart{{Text: gp.Prompt}})
		if err != nil {
			return nil, err
		}
		images = append(images, imgs...)
	}
	if len(images) == 0 {
		return nil, &Error{Kind: KindProviderUnavailable, Provider: types.ProviderGemini, Model: model, Msg: "no images in response"}
	}
	return &types.GenerationResult{
		Images:   images,
		Provider: types.ProviderGemini,
		Model:    model,
	}, nil
}

// Edit performs prompt-based editing: the source image is sent inline
// alongside the instruction. Masks are not supported by this mode.
func (g *Gemini) Edit(ctx context.Context, ep EditParams) (*types.GenerationResult, error) {
	model := catalog.NormalizeGeminiModel(ep.Model)
	caps := catalog.Lookup(model)
	n := clampN(ep.N, caps.MaxImages)

	parts := []geminiPart{
		{Text: ep.Prompt},
		{InlineData: &geminiInlineData{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString(ep.Image)}},
	}
	var images []types.Image
	for i := 0; i < n; i++ {
		imgs, err := g.generateOne(ctx, model, "", parts)
		if err != nil {
			return nil, err
		}
		images = append(images, imgs...)
	}
	if len(images) == 0 {
		return nil, &Error{Kind: KindProviderUnavailable, Provider: types.ProviderGemini, Model: model, Msg: "no images in response"}
	}
	return &types.GenerationResult{
		Images:   images,
		Provider: types.ProviderGemini,
		Model:    model,
	}, nil
}

func (g *Gemini) generateOne(ctx context.Context, model, aspectRatio string, parts []geminiPart) ([]types.Image, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if aspectRatio != "" {
		payload.GenerationConfig.ImageConfig = &geminiImageConfig{AspectRatio: aspectRatio}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, model, g.apiKey)
	resp, err := postJSON(ctx, g.hc, url, "", payload, types.ProviderGemini, model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, Wrap(KindProviderUnavailable, types.ProviderGemini, model, err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyGemini(resp.StatusCode, body, model)
	}
	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, Wrap(KindProviderUnavailable, types.ProviderGemini, model, err, "decode response")
	}
	var images []types.Image
	for _, cand := range gr.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, Wrap(KindProviderUnavailable, types.ProviderGemini, model, err, "malformed image payload")
			}
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			images = append(images, types.Image{Data: raw, MIME: mime})
		}
	}
	if len(images) == 0 {
		// A 200 with no image parts can still be a safety block, reported
		// only through finishReason (e.g. IMAGE_SAFETY, PROHIBITED_CONTENT).
		for _, cand := range gr.Candidates {
			reason := strings.ToUpper(cand.FinishReason)
			if strings.Contains(reason, "SAFETY") || reason == "PROHIBITED_CONTENT" || reason == "BLOCKLIST" {
				return nil, &Error{Kind: KindContentPolicy, Provider: types.ProviderGemini, Model: model,
					Msg: "generation blocked: " + cand.FinishReason}
			}
		}
	}
	return images, nil
}

// classifyGemini maps Gemini error responses onto the shared taxonomy.
func classifyGemini(status int, body []byte, model string) *Error {
	var gr geminiResponse
	_ = json.Unmarshal(body, &gr)
	msg := ""
	if gr.Error != nil {
		msg = gr.Error.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindProviderUnavailable, Provider: types.ProviderGemini, Model: model, Msg: "authentication failed: " + msg}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Provider: types.ProviderGemini, Model: model, Msg: "rate limited: " + msg}
	case status == http.StatusNotFound:
		return &Error{Kind: KindModelNotFound, Provider: types.ProviderGemini, Model: model, Msg: msg}
	case status == http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") {
			return &Error{Kind: KindContentPolicy, Provider: types.ProviderGemini, Model: model, Msg: msg}
		}
		return &Error{Kind: KindValidation, Provider: types.ProviderGemini, Model: model, Msg: msg}
	default:
		return &Error{Kind: KindProviderUnavailable, Provider: types.ProviderGemini, Model: model, Msg: fmt.Sprintf("upstream error %d: %s", status, msg)}
	}
}

// Health reports whether the key is set and the API answers within the
// probe timeout.
func (g *Gemini) Health(ctx context.Context) bool {
	if g.apiKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1beta/models?key="+g.apiKey+"&pageSize=1", nil)
	if err != nil {
		return false
	}
	resp, err := g.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ListModels is unsupported for direct vendors; their catalog is static.
func (g *Gemini) ListModels(ctx context.Context) ([]types.ModelInfo, error) {
	return nil, nil
}
