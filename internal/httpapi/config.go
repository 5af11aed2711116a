package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Multipart edit uploads get four times this limit.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// requestTimeout caps how long a generation or edit request may run before
// timing out. Zero means no additional timeout beyond server/connection
// timeouts.
var requestTimeout = int64(0) // seconds

// SetRequestTimeoutSeconds sets the per-request timeout in seconds (0 disables).
func SetRequestTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	requestTimeout = sec
}

// bearerToken, when set, is required as "Authorization: Bearer <token>" on
// the API endpoints. Probe and metrics endpoints stay open.
var bearerToken string

// SetBearerToken configures the shared inbound secret (empty disables auth).
func SetBearerToken(tok string) { bearerToken = tok }

// imagesDir is the local directory served under /images/. Empty disables
// the static route.
var imagesDir string

// SetImagesDir configures the directory for serving stored images.
func SetImagesDir(dir string) { imagesDir = dir }

// inlineImages switches the default response format to base64 when a
// request does not specify one.
var inlineImages bool

// SetInlineImages configures the inline default.
func SetInlineImages(v bool) { inlineImages = v }

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
