package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newGeminiTest(url string) *Gemini {
	return NewGemini(url, "gm-key", 5*time.Second, zerolog.Nop())
}

func geminiOKBody() string {
	data := base64.StdEncoding.EncodeToString([]byte(testPNG))
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":%q}}]},"finishReason":"STOP"}]}`, data)
}

func TestGeminiGenerateIssuesOneCallPerImage(t *testing.T) {
	calls := 0
	var bodies []geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var gr geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&gr); err != nil {
			t.Errorf("decode request: %v", err)
		}
		bodies = append(bodies, gr)
		if !strings.HasPrefix(r.URL.Path, "/v1beta/models/imagen-3.0-generate-002:generateContent") {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gm-key" {
			t.Errorf("key=%q", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, geminiOKBody())
	}))
	defer srv.Close()

	res, err := newGeminiTest(srv.URL).Generate(context.Background(), GenerateParams{
		Prompt: "x", Model: "gemini/imagen-3.0-generate-002", AspectRatio: "16:9", N: 2,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if calls != 2 || len(res.Images) != 2 {
		t.Fatalf("calls=%d images=%d", calls, len(res.Images))
	}
	if string(res.Images[0].Data) != testPNG {
		t.Fatalf("bytes=%q", res.Images[0].Data)
	}
	for _, b := range bodies {
		if len(b.GenerationConfig.ResponseModalities) != 1 || b.GenerationConfig.ResponseModalities[0] != "IMAGE" {
			t.Fatalf("modalities=%v", b.GenerationConfig.ResponseModalities)
		}
		if b.GenerationConfig.ImageConfig == nil || b.GenerationConfig.ImageConfig.AspectRatio != "16:9" {
			t.Fatalf("image config=%+v", b.GenerationConfig.ImageConfig)
		}
	}
	// The routing prefix must not leak into the result.
	if res.Model != "imagen-3.0-generate-002" {
		t.Fatalf("model=%q", res.Model)
	}
}

func TestGeminiSquareOmitsImageConfig(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, geminiOKBody())
	}))
	defer srv.Close()

	if _, err := newGeminiTest(srv.URL).Generate(context.Background(), GenerateParams{
		Prompt: "x", Model: "imagen-3.0-generate-002", AspectRatio: "", N: 1,
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got.GenerationConfig.ImageConfig != nil {
		t.Fatalf("image config should be omitted, got %+v", got.GenerationConfig.ImageConfig)
	}
}

func TestGeminiEditSendsInlineImage(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, geminiOKBody())
	}))
	defer srv.Close()

	if _, err := newGeminiTest(srv.URL).Edit(context.Background(), EditParams{
		Prompt: "add a hat", Model: "gemini-2.0-flash-preview-image-generation",
		Image: []byte("src-img"), N: 1,
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	parts := got.Contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "add a hat" || parts[1].InlineData == nil {
		t.Fatalf("parts=%+v", parts)
	}
	decoded, _ := base64.StdEncoding.DecodeString(parts[1].InlineData.Data)
	if string(decoded) != "src-img" {
		t.Fatalf("inline data=%q", decoded)
	}
}

func TestGeminiErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   Kind
	}{
		{429, `{"error":{"message":"quota exceeded"}}`, KindRateLimited},
		{403, `{"error":{"message":"key invalid"}}`, KindProviderUnavailable},
		{404, `{"error":{"message":"model not found"}}`, KindModelNotFound},
		{400, `{"error":{"message":"blocked by safety settings"}}`, KindContentPolicy},
		{400, `{"error":{"message":"invalid argument"}}`, KindValidation},
		{503, `{"error":{"message":"overloaded"}}`, KindProviderUnavailable},
	}
	for i, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			w.Write([]byte(c.body))
		}))
		_, err := newGeminiTest(srv.URL).Generate(context.Background(), GenerateParams{
			Prompt: "x", Model: "imagen-3.0-generate-002", N: 1,
		})
		srv.Close()
		if KindOf(err) != c.kind {
			t.Fatalf("case %d: kind=%s want %s (err=%v)", i, KindOf(err), c.kind, err)
		}
	}
}

func TestGeminiNoImagesInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	_, err := newGeminiTest(srv.URL).Generate(context.Background(), GenerateParams{
		Prompt: "x", Model: "imagen-3.0-generate-002", N: 1,
	})
	if KindOf(err) != KindProviderUnavailable {
		t.Fatalf("kind=%s", KindOf(err))
	}
}

func TestGeminiSafetyBlockedWithoutImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"IMAGE_SAFETY"}]}`))
	}))
	defer srv.Close()

	_, err := newGeminiTest(srv.URL).Generate(context.Background(), GenerateParams{
		Prompt: "x", Model: "imagen-3.0-generate-002", N: 1,
	})
	if KindOf(err) != KindContentPolicy {
		t.Fatalf("kind=%s (err=%v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "IMAGE_SAFETY") {
		t.Fatalf("msg=%q", err.Error())
	}
}

func TestGeminiHealthRequiresKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	noKey := NewGemini(srv.URL, "", time.Second, zerolog.Nop())
	if noKey.Health(context.Background()) {
		t.Fatal("keyless adapter must report unhealthy")
	}
	if !newGeminiTest(srv.URL).Health(context.Background()) {
		t.Fatal("expected healthy")
	}
}
