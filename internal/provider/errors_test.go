package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

func TestKindOf(t *testing.T) {
	err := E(KindRateLimited, "slow down")
	if KindOf(err) != KindRateLimited {
		t.Fatalf("kind=%s", KindOf(err))
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != KindRateLimited {
		t.Fatal("kind must survive wrapping")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("plain errors have no kind")
	}
}

func TestIsValidation(t *testing.T) {
	for _, k := range []Kind{KindValidation, KindUnsupportedAspectRatio, KindUnsupportedQuality, KindInvalidCount, KindMissingMask} {
		if !IsValidation(E(k, "x")) {
			t.Fatalf("%s should be validation", k)
		}
	}
	if IsValidation(E(KindRateLimited, "x")) {
		t.Fatal("rate limit is not validation")
	}
}

func TestIsCapabilityShaped(t *testing.T) {
	if !IsCapabilityShaped(E(KindCapabilityGap, "x")) {
		t.Fatal("capability gap should be fallback-eligible")
	}
	// The exhausted kind marks a finished hop, never a new one.
	if IsCapabilityShaped(E(KindCapabilityGapExhausted, "x")) {
		t.Fatal("exhausted gap must not retrigger fallback")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindProviderUnavailable, types.ProviderProxy, "dall-e-3", cause, "request failed")
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if got := err.Error(); got != "request failed (provider=proxy model=dall-e-3)" {
		t.Fatalf("msg=%q", got)
	}
}
