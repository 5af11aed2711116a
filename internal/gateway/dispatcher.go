// Package gateway orchestrates a request across the provider adapters:
// model resolution, capability validation, proxy-gap routing with the
// single fallback hop, and result persistence.
package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/danielcopper/openapi-image-gen/internal/catalog"
	"github.com/danielcopper/openapi-image-gen/internal/provider"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// Store is the persistence capability consumed by the dispatcher. Save
// failures are non-fatal: images are still returned inline.
type Store interface {
	Save(data []byte, ext string) (string, error)
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Options are the dispatcher's routing tunables.
type Options struct {
	// DefaultModel is used when a request omits the model.
	DefaultModel string
	// FallbackEnabled allows the single proxy-to-vendor fallback hop.
	FallbackEnabled bool
}

// Dispatcher owns the per-request state machine. Adapters present in the
// map are configured and usable; fallback eligibility is simply whether
// the vendor adapter was registered.
type Dispatcher struct {
	registry *catalog.Registry
	adapters map[types.Provider]provider.Adapter
	store    Store // nil disables persistence
	opts     Options
	log      zerolog.Logger
}

// New wires a dispatcher.
func New(reg *catalog.Registry, adapters map[types.Provider]provider.Adapter, store Store, opts Options, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		adapters: adapters,
		store:    store,
		opts:     opts,
		log:      log,
	}
}

// Generate runs the full pipeline for a generation request.
func (d *Dispatcher) Generate(ctx context.Context, req types.GenerationRequest) (*types.GenerationResult, error) {
	applyGenerateDefaults(&req)

	adapter, ok := d.adapters[req.Provider]
	if !ok {
		return nil, provider.Ef(provider.KindProviderUnavailable, "provider %s is not configured", req.Provider)
	}

	model, err := d.resolveModel(ctx, req.Provider, req.Model, false)
	if err != nil {
		return nil, err
	}
	if err := validateGenerate(req, model); err != nil {
		return nil, err
	}

	params := provider.GenerateParams{
		Prompt:      req.Prompt,
		Model:       model.ID,
		AspectRatio: req.AspectRatio,
		Quality:     req.Quality,
		N:           req.N,
	}

	// Routing: re-route up front when the proxy is known to be unable to
	// express the request and the vendor adapter is available.
	target, routedFallback := d.route(req.Provider, model.ID, req.AspectRatio)
	if routedFallback {
		adapter = target
		params.Model = catalog.NormalizeGeminiModel(model.ID)
		d.log.Info().Str("model", model.ID).Str("aspect_ratio", req.AspectRatio).
			Str("vendor", string(target.Name())).Msg("known proxy gap, routing direct")
	}

	res, err := adapter.Generate(ctx, params)
	if err != nil {
		invoked := req.Provider
		if routedFallback {
			invoked = target.Name()
		}
		res, err = d.retryDirect(ctx, req.Provider, invoked, model.ID, err,
			func(a provider.Adapter, m string) (*types.GenerationResult, error) {
				p := params
				p.Model = m
				return a.Generate(ctx, p)
			})
		if err != nil {
			return nil, err
		}
		routedFallback = true
	}
	res.FallbackUsed = routedFallback
	d.persist(res)
	return res, nil
}

// Edit runs the full pipeline for an edit request.
func (d *Dispatcher) Edit(ctx context.Context, req types.EditRequest) (*types.GenerationResult, error) {
	applyEditDefaults(&req)

	adapter, ok := d.adapters[req.Provider]
	if !ok {
		return nil, provider.Ef(provider.KindProviderUnavailable, "provider %s is not configured", req.Provider)
	}

	model, err := d.resolveModel(ctx, req.Provider, req.Model, true)
	if err != nil {
		return nil, err
	}
	if err := validateEdit(req, model); err != nil {
		return nil, err
	}

	// Resolve the image source to bytes before dispatch.
	image := req.Image
	if len(image) == 0 {
		if d.store == nil {
			return nil, provider.E(provider.KindValidation, "image_url requires storage to be configured")
		}
		image, err = d.store.Load(ctx, req.ImageURL)
		if err != nil {
			return nil, provider.Wrap(provider.KindValidation, req.Provider, model.ID, err, "failed to load source image")
		}
	}

	params := provider.EditParams{
		Prompt: req.Prompt,
		Model:  model.ID,
		Image:  image,
		Mask:   req.Mask,
		N:      req.N,
	}
	res, err := adapter.Edit(ctx, params)
	fellBack := false
	if err != nil {
		res, err = d.retryDirect(ctx, req.Provider, req.Provider, model.ID, err,
			func(a provider.Adapter, m string) (*types.GenerationResult, error) {
				p := params
				p.Model = m
				return a.Edit(ctx, p)
			})
		if err != nil {
			return nil, err
		}
		fellBack = true
	}
	res.FallbackUsed = fellBack
	d.persist(res)
	return res, nil
}

// GenerateStream wraps Generate in a lazy progress event sequence for SSE
// consumption. Nothing runs until the consumer pulls.
func (d *Dispatcher) GenerateStream(req types.GenerationRequest) *Stream {
	applyGenerateDefaults(&req)
	return NewStream(req.Model, req.Provider, func(ctx context.Context) (*types.GenerationResult, error) {
		return d.Generate(ctx, req)
	})
}

// Models returns the registry view plus cache metadata.
func (d *Dispatcher) Models(ctx context.Context, force bool) types.ModelListResponse {
	cached := !force && d.registry.CacheValid()
	models := d.registry.Refresh(ctx, force)
	return types.ModelListResponse{
		Models:         models,
		Cached:         cached,
		CacheExpiresIn: int64(d.registry.CacheExpiresIn().Seconds()),
	}
}

// Health probes every configured adapter.
func (d *Dispatcher) Health(ctx context.Context) types.HealthResponse {
	resp := types.HealthResponse{Status: "degraded"}
	if a, ok := d.adapters[types.ProviderProxy]; ok {
		resp.Proxy = a.Health(ctx)
	}
	if a, ok := d.adapters[types.ProviderOpenAI]; ok {
		resp.OpenAI = a.Health(ctx)
	}
	if a, ok := d.adapters[types.ProviderGemini]; ok {
		resp.Gemini = a.Health(ctx)
	}
	if resp.Proxy || resp.OpenAI || resp.Gemini {
		resp.Status = "ok"
	}
	return resp
}

// Ready reports whether at least one adapter is configured.
func (d *Dispatcher) Ready() bool { return len(d.adapters) > 0 }

// route decides the initial execution target. The only known proxy gap is
// Gemini-family models with non-square aspect ratios.
func (d *Dispatcher) route(requested types.Provider, modelID, aspectRatio string) (provider.Adapter, bool) {
	if requested != types.ProviderProxy || !d.opts.FallbackEnabled {
		return nil, false
	}
	if !catalog.IsGeminiModel(modelID) || aspectRatio == "1:1" {
		return nil, false
	}
	vendor, ok := d.adapters[types.ProviderGemini]
	if !ok {
		d.log.Warn().Str("model", modelID).Str("aspect_ratio", aspectRatio).
			Msg("proxy gap detected but gemini adapter not configured, staying on proxy")
		return nil, false
	}
	return vendor, true
}

// retryDirect implements the single fallback hop: only from the proxy,
// only to the vendor behind the model, only for capability-shaped
// failures, and never when already on the fallback path (invoked differs
// from requested after a pre-route). A failed hop yields
// CapabilityGapExhausted. invoked is the provider whose adapter actually
// ran and is what the attempted chain records.
func (d *Dispatcher) retryDirect(ctx context.Context, requested, invoked types.Provider, modelID string, cause error,
	call func(provider.Adapter, string) (*types.GenerationResult, error)) (*types.GenerationResult, error) {

	if invoked != requested || requested != types.ProviderProxy || !d.opts.FallbackEnabled || !provider.IsCapabilityShaped(cause) {
		return nil, attach(cause, invoked)
	}
	vendorName := catalog.InferProvider(modelID)
	if vendorName == types.ProviderProxy {
		return nil, attach(cause, invoked)
	}
	vendor, ok := d.adapters[vendorName]
	if !ok {
		return nil, attach(cause, invoked)
	}

	d.log.Info().Str("model", modelID).Str("vendor", string(vendorName)).
		Msg("capability gap reported by proxy, retrying direct")
	vendorModel := modelID
	if vendorName == types.ProviderGemini {
		vendorModel = catalog.NormalizeGeminiModel(modelID)
	}
	res, err := call(vendor, vendorModel)
	if err != nil {
		return nil, &provider.Error{
			Kind:      provider.KindCapabilityGapExhausted,
			Provider:  vendorName,
			Model:     modelID,
			Msg:       "fallback to direct vendor also failed: " + err.Error(),
			Attempted: []types.Provider{types.ProviderProxy, vendorName},
		}
	}
	return res, nil
}

// persist saves inline image bytes and fills in their public URLs. A
// failed save keeps the bytes and logs a warning; generation succeeded.
func (d *Dispatcher) persist(res *types.GenerationResult) {
	if d.store == nil {
		return
	}
	for i := range res.Images {
		img := &res.Images[i]
		if img.URL != "" || len(img.Data) == 0 {
			continue
		}
		url, err := d.store.Save(img.Data, extForMIME(img.MIME))
		if err != nil {
			d.log.Warn().Err(err).Msg("image save failed, returning inline only")
			continue
		}
		img.URL = url
	}
}

// resolveModel picks the model for a request: explicit id, configured
// default, or the first (editing-capable, for edits) registry model
// matching the provider.
func (d *Dispatcher) resolveModel(ctx context.Context, p types.Provider, modelID string, forEdit bool) (types.ModelInfo, error) {
	models := d.registry.Refresh(ctx, false)
	if len(models) == 0 {
		return types.ModelInfo{}, provider.E(provider.KindRegistryUnavailable, "no models available")
	}

	if modelID == "" {
		modelID = d.opts.DefaultModel
	}
	if modelID != "" {
		for _, m := range models {
			if m.ID == modelID {
				if p != types.ProviderProxy && m.Provider != p {
					return types.ModelInfo{}, provider.Ef(provider.KindModelNotFound,
						"model not found for provider %s: %s", p, modelID)
				}
				return m, nil
			}
		}
		return types.ModelInfo{}, provider.Ef(provider.KindModelNotFound, "model not found: %s", modelID)
	}

	for _, m := range models {
		if p != types.ProviderProxy && m.Provider != p {
			continue
		}
		if forEdit && !m.Capabilities.SupportsEditing {
			continue
		}
		return m, nil
	}
	return types.ModelInfo{}, provider.Ef(provider.KindModelNotFound,
		"no suitable model available for provider %s", p)
}

func applyGenerateDefaults(req *types.GenerationRequest) {
	if req.Provider == "" {
		req.Provider = types.ProviderProxy
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "1:1"
	}
	if req.N == 0 {
		req.N = 1
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = types.FormatURL
	}
}

func applyEditDefaults(req *types.EditRequest) {
	if req.Provider == "" {
		req.Provider = types.ProviderProxy
	}
	if req.N == 0 {
		req.N = 1
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = types.FormatURL
	}
}

// attach records the attempted provider chain on classified errors.
func attach(err error, attempted ...types.Provider) error {
	var pe *provider.Error
	if errors.As(err, &pe) && len(pe.Attempted) == 0 {
		pe.Attempted = attempted
	}
	return err
}

// extForMIME maps a MIME type to a file extension for storage.
func extForMIME(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
