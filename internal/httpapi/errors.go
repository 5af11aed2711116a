package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielcopper/openapi-image-gen/internal/provider"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForKind maps classified provider errors to HTTP status codes.
func statusForKind(k provider.Kind) int {
	switch k {
	case provider.KindValidation,
		provider.KindUnsupportedAspectRatio,
		provider.KindUnsupportedQuality,
		provider.KindInvalidCount,
		provider.KindMissingMask:
		return http.StatusBadRequest
	case provider.KindModelNotFound:
		return http.StatusNotFound
	case provider.KindRateLimited:
		return http.StatusTooManyRequests
	case provider.KindContentPolicy:
		return http.StatusUnprocessableEntity
	case provider.KindTimeout:
		return http.StatusGatewayTimeout
	case provider.KindRegistryUnavailable:
		return http.StatusServiceUnavailable
	case provider.KindProviderUnavailable,
		provider.KindCapabilityGap,
		provider.KindCapabilityGapExhausted:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError writes a consistent JSON error payload, using the error's
// classification when it carries one.
func writeError(w http.ResponseWriter, err error) int {
	var pe *provider.Error
	if errors.As(err, &pe) {
		status := statusForKind(pe.Kind)
		writeJSON(w, status, types.ErrorResponse{
			Error:     pe.Msg,
			Code:      status,
			Kind:      string(pe.Kind),
			Attempted: pe.Attempted,
		})
		return status
	}
	if he, ok := err.(HTTPError); ok {
		writeJSONError(w, he.StatusCode(), he.Error())
		return he.StatusCode()
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
