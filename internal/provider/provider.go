// Package provider contains the adapters that translate the normalized
// request shape into each backend's wire format and classify their
// heterogeneous failures into one error taxonomy.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// GenerateParams is the normalized input to an adapter's Generate call.
// The dispatcher resolves model and defaults before building it.
type GenerateParams struct {
	Prompt      string
	Model       string
	AspectRatio string
	Quality     string
	N           int
}

// EditParams is the normalized input to an adapter's Edit call. Image is
// always raw bytes by this point; URL sources are loaded by the caller.
type EditParams struct {
	Prompt string
	Model  string
	Image  []byte
	Mask   []byte
	N      int
}

// Adapter is the uniform capability surface over a backend. Health never
// returns an error and never blocks past a short bounded timeout.
// ListModels is only meaningful for the proxy; direct vendors return an
// empty list since their catalogs are static.
type Adapter interface {
	Name() types.Provider
	Generate(ctx context.Context, p GenerateParams) (*types.GenerationResult, error)
	Edit(ctx context.Context, p EditParams) (*types.GenerationResult, error)
	Health(ctx context.Context) bool
	ListModels(ctx context.Context) ([]types.ModelInfo, error)
}

const (
	// defaultTimeout bounds a single outbound generation call.
	defaultTimeout = 120 * time.Second
	// healthTimeout bounds Health probes.
	healthTimeout = 3 * time.Second
)

// httpClient builds the client shared by the adapters.
func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// clampN caps n at the model's maximum, returning the adjusted value.
// Validation already rejects out-of-range n for known models; this guards
// registry-unknown models the proxy may expose.
func clampN(n, max int) int {
	if n < 1 {
		return 1
	}
	if max >= 1 && n > max {
		return max
	}
	return n
}
