//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

// MountSwagger serves the OpenAPI UI at /swagger/. Enabled with -tags=swagger
// after generating docs with `make swagger-gen`.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler())
}
