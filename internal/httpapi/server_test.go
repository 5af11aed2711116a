package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielcopper/openapi-image-gen/internal/gateway"
	"github.com/danielcopper/openapi-image-gen/internal/provider"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

type mockService struct {
	genRes   *types.GenerationResult
	genErr   error
	editRes  *types.GenerationResult
	editErr  error
	models   types.ModelListResponse
	health   types.HealthResponse
	ready    bool
	lastGen  types.GenerationRequest
	lastEdit types.EditRequest
	forceArg bool
}

func (m *mockService) Generate(ctx context.Context, req types.GenerationRequest) (*types.GenerationResult, error) {
	m.lastGen = req
	if m.genErr != nil {
		return nil, m.genErr
	}
	res := *m.genRes
	return &res, nil
}

func (m *mockService) GenerateStream(req types.GenerationRequest) *gateway.Stream {
	return gateway.NewStream(req.Model, req.Provider, func(ctx context.Context) (*types.GenerationResult, error) {
		return m.Generate(ctx, req)
	})
}

func (m *mockService) Edit(ctx context.Context, req types.EditRequest) (*types.GenerationResult, error) {
	m.lastEdit = req
	if m.editErr != nil {
		return nil, m.editErr
	}
	res := *m.editRes
	return &res, nil
}

func (m *mockService) Models(ctx context.Context, force bool) types.ModelListResponse {
	m.forceArg = force
	return m.models
}

func (m *mockService) Health(ctx context.Context) types.HealthResponse { return m.health }

func (m *mockService) Ready() bool { return m.ready }

func okGenResult() *types.GenerationResult {
	return &types.GenerationResult{
		Images:   []types.Image{{URL: "http://x/images/a.png", Data: []byte("png"), MIME: "image/png"}},
		Model:    "dall-e-3",
		Provider: types.ProviderProxy,
	}
}

func resetPackageConfig() {
	SetBearerToken("")
	SetImagesDir("")
	SetInlineImages(false)
	SetCORSOptions(false, nil, nil, nil)
	SetRequestTimeoutSeconds(0)
	SetMaxBodyBytes(0)
	SetBaseContext(nil)
}

func postJSONReq(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGenerateHandler(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{genRes: okGenResult()}
	h := NewMux(svc)

	w := postJSONReq(t, h, "/generate", types.GenerationRequest{Prompt: "a cat", Model: "dall-e-3"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var out types.ImageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.ImageURL != "http://x/images/a.png" || out.Model != "dall-e-3" {
		t.Fatalf("out=%+v", out)
	}
}

func TestGenerateHandlerRequiresJSON(t *testing.T) {
	resetPackageConfig()
	h := NewMux(&mockService{genRes: okGenResult()})
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader("prompt=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGenerateHandlerInvalidBody(t *testing.T) {
	resetPackageConfig()
	h := NewMux(&mockService{genRes: okGenResult()})
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGenerateHandlerErrorMapping(t *testing.T) {
	resetPackageConfig()
	cases := []struct {
		kind   provider.Kind
		status int
	}{
		{provider.KindValidation, http.StatusBadRequest},
		{provider.KindUnsupportedAspectRatio, http.StatusBadRequest},
		{provider.KindMissingMask, http.StatusBadRequest},
		{provider.KindModelNotFound, http.StatusNotFound},
		{provider.KindRateLimited, http.StatusTooManyRequests},
		{provider.KindContentPolicy, http.StatusUnprocessableEntity},
		{provider.KindTimeout, http.StatusGatewayTimeout},
		{provider.KindRegistryUnavailable, http.StatusServiceUnavailable},
		{provider.KindProviderUnavailable, http.StatusBadGateway},
		{provider.KindCapabilityGapExhausted, http.StatusBadGateway},
	}
	for i, c := range cases {
		svc := &mockService{genErr: provider.E(c.kind, "boom")}
		h := NewMux(svc)
		w := postJSONReq(t, h, "/generate", types.GenerationRequest{Prompt: "x"})
		if w.Code != c.status {
			t.Fatalf("case %d (%s): status=%d want %d", i, c.kind, w.Code, c.status)
		}
		var er types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
			t.Fatalf("case %d: json: %v", i, err)
		}
		if er.Kind != string(c.kind) || er.Code != c.status {
			t.Fatalf("case %d: body=%+v", i, er)
		}
	}
}

func TestGenerateHandlerAttemptedChain(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{genErr: &provider.Error{
		Kind:      provider.KindCapabilityGapExhausted,
		Msg:       "fallback failed",
		Attempted: []types.Provider{types.ProviderProxy, types.ProviderGemini},
	}}
	h := NewMux(svc)
	w := postJSONReq(t, h, "/generate", types.GenerationRequest{Prompt: "x"})
	var er types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(er.Attempted) != 2 || er.Attempted[1] != types.ProviderGemini {
		t.Fatalf("attempted=%v", er.Attempted)
	}
}

func TestGenerateHandlerInlineDefault(t *testing.T) {
	resetPackageConfig()
	SetInlineImages(true)
	defer SetInlineImages(false)
	svc := &mockService{genRes: okGenResult()}
	h := NewMux(svc)

	w := postJSONReq(t, h, "/generate", types.GenerationRequest{Prompt: "x"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if svc.lastGen.ResponseFormat != types.FormatBase64 {
		t.Fatalf("format=%s", svc.lastGen.ResponseFormat)
	}
	// An explicit format wins over the inline default.
	postJSONReq(t, h, "/generate", types.GenerationRequest{Prompt: "x", ResponseFormat: types.FormatURL})
	if svc.lastGen.ResponseFormat != types.FormatURL {
		t.Fatalf("format=%s", svc.lastGen.ResponseFormat)
	}
}

func TestGenerateStreamHandler(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{genRes: okGenResult()}
	h := NewMux(svc)

	w := postJSONReq(t, h, "/generate/stream", types.GenerationRequest{Prompt: "x", Model: "dall-e-3"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%s", ct)
	}
	body := w.Body.String()
	for _, marker := range []string{"event: status", `"status":"queued"`, `"status":"generating"`, `"status":"processing"`, "event: complete", `"progress":100`} {
		if !strings.Contains(body, marker) {
			t.Fatalf("missing %q in stream:\n%s", marker, body)
		}
	}
	if strings.Count(body, "event: complete") != 1 {
		t.Fatalf("terminal events != 1:\n%s", body)
	}
}

func TestGenerateStreamHandlerError(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{genErr: provider.E(provider.KindProviderUnavailable, "backend down")}
	h := NewMux(svc)

	w := postJSONReq(t, h, "/generate/stream", types.GenerationRequest{Prompt: "x"})
	body := w.Body.String()
	if !strings.Contains(body, "event: error") || !strings.Contains(body, "backend down") {
		t.Fatalf("stream:\n%s", body)
	}
	if strings.Contains(body, "event: complete") {
		t.Fatalf("no complete event expected:\n%s", body)
	}
}

func TestGeneratePreviewHandler(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{genRes: okGenResult()}
	h := NewMux(svc)

	w := postJSONReq(t, h, "/generate/preview", types.GenerationRequest{Prompt: "a cat", AspectRatio: "16:9"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("content-type=%s", ct)
	}
	if !strings.Contains(w.Body.String(), "http://x/images/a.png") {
		t.Fatalf("body missing image:\n%s", w.Body.String())
	}
}

func TestEditHandlerMultipart(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{editRes: okGenResult()}
	h := NewMux(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("prompt", "fix sky")
	mw.WriteField("model", "gpt-image-1")
	mw.WriteField("n", "2")
	fw, _ := mw.CreateFormFile("image", "src.png")
	fw.Write([]byte("img-bytes"))
	mfw, _ := mw.CreateFormFile("mask", "mask.png")
	mfw.Write([]byte("mask-bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/edit", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if svc.lastEdit.Prompt != "fix sky" || svc.lastEdit.N != 2 {
		t.Fatalf("req=%+v", svc.lastEdit)
	}
	if string(svc.lastEdit.Image) != "img-bytes" || string(svc.lastEdit.Mask) != "mask-bytes" {
		t.Fatalf("files: image=%q mask=%q", svc.lastEdit.Image, svc.lastEdit.Mask)
	}
}

func TestEditHandlerJSONWithImageURL(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{editRes: okGenResult()}
	h := NewMux(svc)

	w := postJSONReq(t, h, "/edit", map[string]any{
		"prompt":    "fix sky",
		"image_url": "http://x/images/a.png",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if svc.lastEdit.ImageURL != "http://x/images/a.png" {
		t.Fatalf("req=%+v", svc.lastEdit)
	}
}

func TestModelsHandler(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{models: types.ModelListResponse{
		Models: []types.ModelInfo{{ID: "dall-e-3"}}, Cached: true, CacheExpiresIn: 100,
	}}
	h := NewMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var out types.ModelListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Models) != 1 || !out.Cached {
		t.Fatalf("out=%+v", out)
	}
	if svc.forceArg {
		t.Fatal("plain GET must not force a refresh")
	}
}

func TestModelsHandlerRefreshQuery(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{}
	h := NewMux(svc)
	req := httptest.NewRequest(http.MethodGet, "/models?refresh=true", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !svc.forceArg {
		t.Fatal("refresh=true must force")
	}
}

func TestModelsRefreshHandler(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{}
	h := NewMux(svc)

	// Empty body defaults to force.
	req := httptest.NewRequest(http.MethodPost, "/models/refresh", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !svc.forceArg {
		t.Fatalf("status=%d force=%v", w.Code, svc.forceArg)
	}

	// Explicit force=false only refreshes an expired cache.
	w = postJSONReq(t, h, "/models/refresh", types.RefreshRequest{Force: false})
	if w.Code != http.StatusOK || svc.forceArg {
		t.Fatalf("status=%d force=%v", w.Code, svc.forceArg)
	}
}

func TestHealthHandler(t *testing.T) {
	resetPackageConfig()
	svc := &mockService{health: types.HealthResponse{Status: "ok", Proxy: true}}
	h := NewMux(svc)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	svc.health = types.HealthResponse{Status: "degraded"}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	resetPackageConfig()
	h := NewMux(&mockService{ready: true})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	h = NewMux(&mockService{ready: false})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	resetPackageConfig()
	h := NewMux(&mockService{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestBearerAuth(t *testing.T) {
	resetPackageConfig()
	SetBearerToken("secret")
	defer SetBearerToken("")
	h := NewMux(&mockService{genRes: okGenResult()})

	// Missing token on an API route.
	w := postJSONReq(t, h, "/generate", types.GenerationRequest{Prompt: "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}

	// Correct token passes.
	b, _ := json.Marshal(types.GenerationRequest{Prompt: "x"})
	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	// Probes stay open.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", w.Code)
	}
}

func TestImagesRoute(t *testing.T) {
	resetPackageConfig()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	SetImagesDir(dir)
	defer SetImagesDir("")
	h := NewMux(&mockService{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/a.png", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "image/png") {
		t.Fatalf("content-type=%s", ct)
	}
	if w.Body.String() != "png-bytes" {
		t.Fatalf("body=%q", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/missing.png", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestImagesRouteAbsentWithoutDir(t *testing.T) {
	resetPackageConfig()
	h := NewMux(&mockService{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/a.png", nil))
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	resetPackageConfig()
	h := NewMux(&mockService{})
	// Drive one request through the middleware so the counters exist.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "imagegen_http_requests_total") {
		t.Fatal("expected imagegen metrics in exposition")
	}
}
