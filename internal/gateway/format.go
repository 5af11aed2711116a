package gateway

import (
	"encoding/base64"
	"fmt"

	"github.com/danielcopper/openapi-image-gen/internal/provider"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// Format renders a result into the requested representation. Pure: no
// I/O, the result already carries bytes and/or URLs.
func Format(res *types.GenerationResult, prompt string, format types.ResponseFormat) (types.ImageResponse, error) {
	if len(res.Images) == 0 {
		return types.ImageResponse{}, provider.E(provider.KindProviderUnavailable, "no images generated")
	}
	first := res.Images[0]

	out := types.ImageResponse{
		Prompt:       prompt,
		Model:        res.Model,
		Provider:     res.Provider,
		FallbackUsed: res.FallbackUsed,
		Metadata:     map[string]any{"n": len(res.Images)},
	}
	if len(res.Images) > 1 {
		urls := make([]string, 0, len(res.Images))
		for _, img := range res.Images {
			if img.URL != "" {
				urls = append(urls, img.URL)
			}
		}
		if len(urls) > 0 {
			out.Metadata["all_urls"] = urls
		}
	}
	if res.Usage != nil && res.Usage.CostUSD > 0 {
		out.Metadata["cost_usd"] = res.Usage.CostUSD
	}

	switch format {
	case types.FormatBase64:
		if len(first.Data) == 0 {
			return types.ImageResponse{}, provider.E(provider.KindValidation,
				"base64 format unavailable: image bytes not retained")
		}
		out.ImageBase64 = base64.StdEncoding.EncodeToString(first.Data)
		out.MIMEType = mimeOrDefault(first.MIME)
	case types.FormatMarkdown:
		if first.URL == "" {
			return types.ImageResponse{}, provider.E(provider.KindValidation,
				"markdown format unavailable: storage is disabled")
		}
		out.Markdown = fmt.Sprintf("![Generated image](%s)", first.URL)
		out.ImageURL = first.URL
	default: // url
		if first.URL != "" {
			out.ImageURL = first.URL
			out.MIMEType = mimeOrDefault(first.MIME)
			break
		}
		// Storage disabled: degrade to inline so the caller still gets
		// the image.
		out.ImageBase64 = base64.StdEncoding.EncodeToString(first.Data)
		out.MIMEType = mimeOrDefault(first.MIME)
	}
	return out, nil
}

// PreviewHTML renders a minimal HTML page embedding the generated images,
// used by the preview endpoint.
func PreviewHTML(res *types.GenerationResult, prompt, aspectRatio, quality string) string {
	var imgs string
	for _, img := range res.Images {
		src := img.URL
		if src == "" && len(img.Data) > 0 {
			src = "data:" + mimeOrDefault(img.MIME) + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
		}
		if src == "" {
			continue
		}
		imgs += fmt.Sprintf("<img src=%q alt=%q style=\"max-width:100%%;height:auto;border-radius:8px;margin:8px 0\" />\n", src, prompt)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>
body{margin:0;padding:16px;display:flex;flex-direction:column;align-items:center;background:#f5f5f5;font-family:system-ui,sans-serif}
.container{max-width:1200px;width:100%%}
.info{background:#fff;padding:12px 16px;border-radius:8px;margin-bottom:16px;box-shadow:0 2px 4px rgba(0,0,0,.1)}
.images{display:grid;grid-template-columns:repeat(auto-fit,minmax(300px,1fr));gap:16px}
img{box-shadow:0 4px 8px rgba(0,0,0,.15)}
</style>
</head>
<body>
<div class="container">
<div class="info"><strong>Model:</strong> %s (%s) | <strong>Aspect Ratio:</strong> %s | <strong>Quality:</strong> %s</div>
<div class="images">
%s</div>
</div>
</body>
</html>`, res.Model, res.Provider, aspectRatio, quality, imgs)
}

func mimeOrDefault(mime string) string {
	if mime == "" {
		return "image/png"
	}
	return mime
}
