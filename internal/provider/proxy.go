package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielcopper/openapi-image-gen/internal/catalog"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// proxySizes maps aspect ratios to the size strings accepted through the
// proxy's OpenAI-compatible surface.
var proxySizes = map[string]string{
	"1:1":  "1024x1024",
	"16:9": "1792x1024",
	"9:16": "1024x1792",
	"4:3":  "1792x1024",
	"3:4":  "1024x1792",
}

// costHeader is set by LiteLLM-style proxies with the tracked spend.
const costHeader = "x-litellm-response-cost"

// Proxy is the primary adapter: an OpenAI-compatible cost-tracking proxy
// fronting all vendors. It is also the model discovery source.
type Proxy struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     zerolog.Logger
}

// NewProxy builds the proxy adapter. baseURL must be non-empty.
func NewProxy(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Proxy {
	return &Proxy{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      httpClient(timeout),
		log:     log,
	}
}

func (p *Proxy) Name() types.Provider { return types.ProviderProxy }

// Generate issues an images/generations call through the proxy.
func (p *Proxy) Generate(ctx context.Context, gp GenerateParams) (*types.GenerationResult, error) {
	caps := catalog.Lookup(gp.Model)
	n := clampN(gp.N, caps.MaxImages)
	if n != gp.N {
		p.log.Warn().Str("model", gp.Model).Int("requested", gp.N).Int("using", n).Msg("clamping image count to model maximum")
	}

	size, ok := proxySizes[gp.AspectRatio]
	if !ok {
		size = proxySizes["1:1"]
	}
	payload := imagesRequest{
		Model:          gp.Model,
		Prompt:         gp.Prompt,
		N:              n,
		Size:           size,
		ResponseFormat: "b64_json",
	}
	if len(caps.QualityLevels) > 0 && gp.Quality != "" {
		payload.Quality = gp.Quality
	}

	resp, err := postJSON(ctx, p.hc, p.baseURL+"/v1/images/generations", p.apiKey, payload, types.ProviderProxy, gp.Model)
	if err != nil {
		return nil, err
	}
	ir, hdr, err := readImages(resp, types.ProviderProxy, gp.Model)
	if err != nil {
		return nil, err
	}
	images, err := decodeImages(ir, types.ProviderProxy, gp.Model)
	if err != nil {
		return nil, err
	}
	return &types.GenerationResult{
		Images:   images,
		Provider: types.ProviderProxy,
		Model:    gp.Model,
		Usage:    proxyUsage(hdr, ir),
	}, nil
}

// Edit issues a multipart images/edits call through the proxy.
func (p *Proxy) Edit(ctx context.Context, ep EditParams) (*types.GenerationResult, error) {
	caps := catalog.Lookup(ep.Model)
	n := clampN(ep.N, caps.MaxImages)

	buf, contentType, err := editForm(ep, n)
	if err != nil {
		return nil, Wrap(KindValidation, types.ProviderProxy, ep.Model, err, "encode edit form")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/images/edits", buf)
	if err != nil {
		return nil, Wrap(KindProviderUnavailable, types.ProviderProxy, ep.Model, err, "build request")
	}
	req.Header.Set("Content-Type", contentType)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	ir, hdr, err := doImages(p.hc, req, types.ProviderProxy, ep.Model)
	if err != nil {
		return nil, err
	}
	images, err := decodeImages(ir, types.ProviderProxy, ep.Model)
	if err != nil {
		return nil, err
	}
	return &types.GenerationResult{
		Images:   images,
		Provider: types.ProviderProxy,
		Model:    ep.Model,
		Usage:    proxyUsage(hdr, ir),
	}, nil
}

// Health probes the proxy's models endpoint with a short timeout. It
// never returns an error.
func (p *Proxy) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ListModels fetches the live model list from the proxy's discovery
// endpoint, attributing each id to a vendor and attaching capabilities.
func (p *Proxy) ListModels(ctx context.Context) ([]types.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, Wrap(KindProviderUnavailable, types.ProviderProxy, "", err, "build request")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, classifyTransport(err, types.ProviderProxy, "")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Wrap(KindProviderUnavailable, types.ProviderProxy, "", err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, body, types.ProviderProxy, "")
	}
	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, Wrap(KindProviderUnavailable, types.ProviderProxy, "", err, "decode model list")
	}
	models := make([]types.ModelInfo, 0, len(list.Data))
	for _, d := range list.Data {
		if d.ID == "" {
			continue
		}
		models = append(models, types.ModelInfo{
			ID:           d.ID,
			Provider:     catalog.InferProvider(d.ID),
			Capabilities: catalog.Lookup(d.ID),
		})
	}
	return models, nil
}

// FetchModels satisfies catalog.Fetcher.
func (p *Proxy) FetchModels(ctx context.Context) ([]types.ModelInfo, error) {
	return p.ListModels(ctx)
}

// proxyUsage extracts cost/usage metadata when the proxy reports it.
func proxyUsage(hdr http.Header, ir imagesResponse) *types.Usage {
	var u types.Usage
	if v := hdr.Get(costHeader); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			u.CostUSD = f
		}
	}
	if ir.Usage != nil {
		u.TotalTokens = ir.Usage.TotalTokens
	}
	if u == (types.Usage{}) {
		return nil
	}
	return &u
}
