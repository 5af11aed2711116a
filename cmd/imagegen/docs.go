package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           imagegen API
// @version         1.0
// @description     Unified HTTP API for image generation across a cost-tracking proxy and direct vendor backends.
//
// @contact.name   imagegen maintainers
// @contact.url    https://github.com/danielcopper/openapi-image-gen
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
