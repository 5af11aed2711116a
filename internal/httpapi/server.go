// Package httpapi exposes the image generation service over HTTP: JSON
// endpoints for generation and editing, an SSE progress stream, the model
// registry, health probes and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielcopper/openapi-image-gen/internal/gateway"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, req types.GenerationRequest) (*types.GenerationResult, error)
	GenerateStream(req types.GenerationRequest) *gateway.Stream
	Edit(ctx context.Context, req types.EditRequest) (*types.GenerationResult, error)
	Models(ctx context.Context, force bool) types.ModelListResponse
	Health(ctx context.Context) types.HealthResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	// Probes and metrics stay unauthenticated.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no providers configured"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if imagesDir != "" {
		r.Get("/images/{filename}", handleImage)
	}

	MountSwagger(r)

	r.Group(func(r chi.Router) {
		r.Use(requireBearer)

		r.Post("/generate", handleGenerate(svc))
		r.Post("/generate/stream", handleGenerateStream(svc))
		r.Post("/generate/preview", handleGeneratePreview(svc))
		r.Post("/edit", handleEdit(svc))
		r.Get("/models", handleModels(svc))
		r.Post("/models/refresh", handleModelsRefresh(svc))
		r.Get("/health", handleHealth(svc))
	})

	return r
}

// requireBearer enforces the optional shared inbound secret.
func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != bearerToken {
				writeJSONError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON enforces the content type and body limit before decoding.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// requestContext joins the server base context with the request context and
// applies the configured per-request timeout.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if requestTimeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, time.Duration(requestTimeout)*time.Second)
		return tctx, func() { tcancel(); cancel() }
	}
	return ctx, cancel
}

// handleGenerate godoc
// @Summary      Generate images
// @Description  Generates images from a text prompt via the configured providers.
// @Accept       json
// @Produce      json
// @Param        request body types.GenerationRequest true "generation request"
// @Success      200 {object} types.ImageResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      502 {object} types.ErrorResponse
// @Router       /generate [post]
func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.ResponseFormat == "" && inlineImages {
			req.ResponseFormat = types.FormatBase64
		}
		ctx, cancel := requestContext(r)
		defer cancel()

		lvl := requestLogLevel(r)
		start := time.Now()
		res, err := svc.Generate(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeError(w, err)
			logEnd(r, "generate", status, start, err)
			return
		}
		recordResult(string(res.Provider), res.Model, len(res.Images), res.FallbackUsed)
		out, err := gateway.Format(res, req.Prompt, req.ResponseFormat)
		if err != nil {
			status := writeError(w, err)
			logEnd(r, "generate", status, start, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
		if lvl >= LevelInfo {
			logEnd(r, "generate", http.StatusOK, start, nil)
		}
	}
}

// handleGenerateStream godoc
// @Summary      Generate images with progress events
// @Description  Streams queued/generating/processing/complete progress as SSE.
// @Accept       json
// @Produce      text/event-stream
// @Param        request body types.GenerationRequest true "generation request"
// @Success      200 {string} string "SSE stream"
// @Router       /generate/stream [post]
func handleGenerateStream(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		st := svc.GenerateStream(req)
		for {
			ev, ok := st.Next(ctx)
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Type == gateway.EventComplete && ev.Result != nil {
				recordResult(string(ev.Result.Provider), ev.Result.Model,
					len(ev.Result.Images), ev.Result.FallbackUsed)
			}
		}
	}
}

// handleGeneratePreview godoc
// @Summary      Generate images and render an HTML preview
// @Accept       json
// @Produce      html
// @Param        request body types.GenerationRequest true "generation request"
// @Success      200 {string} string "HTML page"
// @Router       /generate/preview [post]
func handleGeneratePreview(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()

		res, err := svc.Generate(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeError(w, err)
			return
		}
		recordResult(string(res.Provider), res.Model, len(res.Images), res.FallbackUsed)
		aspect := req.AspectRatio
		if aspect == "" {
			aspect = "1:1"
		}
		quality := req.Quality
		if quality == "" {
			quality = "default"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, gateway.PreviewHTML(res, req.Prompt, aspect, quality))
	}
}

// handleEdit godoc
// @Summary      Edit an image
// @Description  Edits a source image (multipart upload or image_url) guided by a prompt.
// @Accept       multipart/form-data
// @Produce      json
// @Param        prompt formData string true "edit instruction"
// @Param        image formData file false "source image"
// @Param        image_url formData string false "source image URL (exclusive with image)"
// @Param        mask formData file false "mask for mask-based edit models"
// @Success      200 {object} types.ImageResponse
// @Failure      400 {object} types.ErrorResponse
// @Router       /edit [post]
func handleEdit(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeEdit(w, r)
		if !ok {
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()

		start := time.Now()
		res, err := svc.Edit(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeError(w, err)
			logEnd(r, "edit", status, start, err)
			return
		}
		recordResult(string(res.Provider), res.Model, len(res.Images), res.FallbackUsed)
		out, err := gateway.Format(res, req.Prompt, req.ResponseFormat)
		if err != nil {
			status := writeError(w, err)
			logEnd(r, "edit", status, start, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
		if requestLogLevel(r) >= LevelInfo {
			logEnd(r, "edit", http.StatusOK, start, nil)
		}
	}
}

// decodeEdit accepts either a multipart form (with file uploads) or a JSON
// body (image_url only).
func decodeEdit(w http.ResponseWriter, r *http.Request) (types.EditRequest, bool) {
	var req types.EditRequest
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "application/json") {
		if !decodeJSON(w, r, &req) {
			return req, false
		}
		return req, true
	}
	if !strings.HasPrefix(ct, "multipart/form-data") {
		writeJSONError(w, http.StatusUnsupportedMediaType,
			"Content-Type must be multipart/form-data or application/json")
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4*maxBodyBytes)
	if err := r.ParseMultipartForm(4 * maxBodyBytes); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid multipart form")
		return req, false
	}
	req.Prompt = r.FormValue("prompt")
	req.Provider = types.Provider(r.FormValue("provider"))
	req.Model = r.FormValue("model")
	req.ImageURL = r.FormValue("image_url")
	req.ResponseFormat = types.ResponseFormat(r.FormValue("response_format"))
	if v := r.FormValue("n"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.N = n
		}
	}
	var ok bool
	if req.Image, ok = readFormFile(w, r, "image"); !ok {
		return req, false
	}
	if req.Mask, ok = readFormFile(w, r, "mask"); !ok {
		return req, false
	}
	return req, true
}

func readFormFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	f, _, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, true
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid "+field+" upload")
		return nil, false
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read "+field+" upload")
		return nil, false
	}
	return b, true
}

// handleModels godoc
// @Summary      List available models
// @Produce      json
// @Param        refresh query bool false "bypass the registry cache"
// @Success      200 {object} types.ModelListResponse
// @Router       /models [get]
func handleModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()
		force := r.URL.Query().Get("refresh") == "1" || r.URL.Query().Get("refresh") == "true"
		resp := svc.Models(ctx, force)
		if force {
			recordRegistryRefresh("query")
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleModelsRefresh godoc
// @Summary      Refresh the model registry
// @Accept       json
// @Produce      json
// @Param        request body types.RefreshRequest false "refresh options"
// @Success      200 {object} types.ModelListResponse
// @Router       /models/refresh [post]
func handleModelsRefresh(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()
		// Body is optional; an explicit {"force": false} only refreshes an
		// expired cache.
		req := types.RefreshRequest{Force: true}
		if r.Body != nil && r.ContentLength != 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		resp := svc.Models(ctx, req.Force)
		if req.Force {
			recordRegistryRefresh("forced")
		} else {
			recordRegistryRefresh("cached")
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleHealth godoc
// @Summary      Per-backend health
// @Produce      json
// @Success      200 {object} types.HealthResponse
// @Failure      503 {object} types.HealthResponse
// @Router       /health [get]
func handleHealth(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()
		resp := svc.Health(ctx)
		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// handleImage serves a stored image by filename. The path parameter is
// reduced to its base name so traversal cannot escape the images dir.
func handleImage(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "filename"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		writeJSONError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	path := filepath.Join(imagesDir, name)
	if _, err := os.Stat(path); err != nil {
		writeJSONError(w, http.StatusNotFound, "image not found")
		return
	}
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		w.Header().Set("Content-Type", mt)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

// writeSSE frames one progress event in SSE wire format.
func writeSSE(w io.Writer, ev gateway.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, b)
	return err
}

// logEnd emits the request completion line through the structured logger
// when one is installed, falling back to the standard logger.
func logEnd(r *http.Request, op string, status int, start time.Time, err error) {
	if zlog != nil {
		z := zlog.Info().Str("op", op).Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg(op + " end")
		return
	}
	if err != nil {
		log.Printf("%s end status=%d dur=%s err=%v", op, status, time.Since(start), err)
		return
	}
	log.Printf("%s end status=%d dur=%s", op, status, time.Since(start))
}
