package e2e

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielcopper/openapi-image-gen/internal/catalog"
	"github.com/danielcopper/openapi-image-gen/internal/gateway"
	"github.com/danielcopper/openapi-image-gen/internal/httpapi"
	"github.com/danielcopper/openapi-image-gen/internal/provider"
	"github.com/danielcopper/openapi-image-gen/internal/storage"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

const fakePNG = "fake-png-bytes"

// newFakeProxy stands in for the upstream OpenAI-compatible proxy: model
// discovery plus b64 image responses with a tracked cost header.
func newFakeProxy(t *testing.T) *httptest.Server {
	t.Helper()
	b64 := base64.StdEncoding.EncodeToString([]byte(fakePNG))
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"dall-e-3"},{"id":"gpt-image-1"},{"id":"gemini/gemini-2.0-flash-preview-image-generation"}]}`))
	})
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-litellm-response-cost", "0.04")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, b64)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newGateway assembles the full stack against the fake proxy: adapter,
// registry, storage, dispatcher and HTTP mux.
func newGateway(t *testing.T, proxyURL string) *httptest.Server {
	t.Helper()
	log := zerolog.Nop()
	proxy := provider.NewProxy(proxyURL, "pk", 5*time.Second, log)
	adapters := map[types.Provider]provider.Adapter{types.ProviderProxy: proxy}

	reg := catalog.NewRegistry(proxy, time.Hour, catalog.DefaultModels(true, true), log)

	store, err := storage.New(t.TempDir(), "http://localhost:8080", true, log)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	disp := gateway.New(reg, adapters, store, gateway.Options{FallbackEnabled: true}, log)

	httpapi.SetImagesDir(store.Dir())
	t.Cleanup(func() { httpapi.SetImagesDir("") })
	srv := httptest.NewServer(httpapi.NewMux(disp))
	t.Cleanup(srv.Close)
	return srv
}
