package provider

import (
	"errors"
	"fmt"

	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// Kind classifies a failure for HTTP mapping and fallback decisions.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindModelNotFound          Kind = "model_not_found"
	KindUnsupportedAspectRatio Kind = "unsupported_aspect_ratio"
	KindUnsupportedQuality     Kind = "unsupported_quality"
	KindInvalidCount           Kind = "invalid_count"
	KindMissingMask            Kind = "missing_mask"
	KindProviderUnavailable    Kind = "provider_unavailable"
	KindRegistryUnavailable    Kind = "registry_unavailable"
	KindCapabilityGap          Kind = "capability_gap"
	KindCapabilityGapExhausted Kind = "capability_gap_exhausted"
	KindRateLimited            Kind = "rate_limited"
	KindContentPolicy          Kind = "content_policy"
	KindTimeout                Kind = "timeout"
)

// Error is the shared failure shape across validator, adapters and
// dispatcher. Attempted records the provider chain for diagnostics.
type Error struct {
	Kind      Kind
	Provider  types.Provider
	Model     string
	Msg       string
	Attempted []types.Provider
	cause     error
}

func (e *Error) Error() string {
	if e.Provider != "" && e.Model != "" {
		return fmt.Sprintf("%s (provider=%s model=%s)", e.Msg, e.Provider, e.Model)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

// E builds a plain classified error.
func E(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// Ef builds a classified error with a formatted message.
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind, attaching provider/model context.
func Wrap(kind Kind, p types.Provider, model string, cause error, msg string) *Error {
	return &Error{Kind: kind, Provider: p, Model: model, Msg: msg, cause: cause}
}

// KindOf extracts the kind from err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// IsValidation reports whether err is any of the validation subtypes
// (client's fault, reported before I/O, never retried).
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindUnsupportedAspectRatio, KindUnsupportedQuality,
		KindInvalidCount, KindMissingMask:
		return true
	}
	return false
}

// IsCapabilityShaped reports whether err indicates the provider cannot
// express the request, making it eligible for the single fallback hop.
func IsCapabilityShaped(err error) bool {
	return KindOf(err) == KindCapabilityGap
}
