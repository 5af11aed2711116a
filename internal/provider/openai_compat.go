package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

// Wire shapes of the OpenAI Images API, shared by the proxy and the
// direct OpenAI adapter.

type imagesRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageDatum struct {
	B64JSON string `json:"b64_json,omitempty"`
	URL     string `json:"url,omitempty"`
}

type imagesResponse struct {
	Created int64        `json:"created"`
	Data    []imageDatum `json:"data"`
	Usage   *struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// postJSON sends a JSON request with bearer auth and returns the raw
// response. Transport errors are classified; HTTP errors are not.
func postJSON(ctx context.Context, hc *http.Client, url, key string, payload any, p types.Provider, model string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Wrap(KindValidation, p, model, err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, Wrap(KindProviderUnavailable, p, model, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, classifyTransport(err, p, model)
	}
	return resp, nil
}

// classifyTransport maps client-side failures (timeouts, refused
// connections) to the shared taxonomy.
func classifyTransport(err error, p types.Provider, model string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, p, model, err, "request timed out")
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return Wrap(KindTimeout, p, model, err, "request timed out")
	}
	return Wrap(KindProviderUnavailable, p, model, err, "request failed")
}

// classifyStatus maps a non-2xx OpenAI-shaped response to the taxonomy.
// 400s that name a size or unsupported parameter are capability gaps,
// which keeps them eligible for the fallback hop.
func classifyStatus(status int, body []byte, p types.Provider, model string) *Error {
	var eb apiErrorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindProviderUnavailable, Provider: p, Model: model, Msg: "authentication failed: " + msg}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Provider: p, Model: model, Msg: "rate limited: " + msg}
	case status == http.StatusNotFound:
		return &Error{Kind: KindModelNotFound, Provider: p, Model: model, Msg: msg}
	case status == http.StatusBadRequest:
		lower := strings.ToLower(msg + " " + eb.Error.Type)
		if strings.Contains(lower, "content_policy") || strings.Contains(lower, "safety") {
			return &Error{Kind: KindContentPolicy, Provider: p, Model: model, Msg: msg}
		}
		if strings.Contains(lower, "size") || strings.Contains(lower, "aspect") || strings.Contains(lower, "not supported") || strings.Contains(lower, "unsupported") {
			return &Error{Kind: KindCapabilityGap, Provider: p, Model: model, Msg: msg}
		}
		return &Error{Kind: KindValidation, Provider: p, Model: model, Msg: msg}
	default:
		return &Error{Kind: KindProviderUnavailable, Provider: p, Model: model, Msg: fmt.Sprintf("upstream error %d: %s", status, msg)}
	}
}

// decodeImages converts an images response into the normalized list.
func decodeImages(resp imagesResponse, p types.Provider, model string) ([]types.Image, error) {
	images := make([]types.Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		switch {
		case d.B64JSON != "":
			raw, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err != nil {
				return nil, Wrap(KindProviderUnavailable, p, model, err, "malformed image payload")
			}
			images = append(images, types.Image{Data: raw, MIME: "image/png"})
		case d.URL != "":
			images = append(images, types.Image{URL: d.URL, MIME: "image/png"})
		}
	}
	if len(images) == 0 {
		return nil, &Error{Kind: KindProviderUnavailable, Provider: p, Model: model, Msg: "no images in response"}
	}
	return images, nil
}

// editForm writes the multipart body for an images/edits call.
func editForm(p EditParams, n int) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"model":           p.Model,
		"prompt":          p.Prompt,
		"n":               fmt.Sprintf("%d", n),
		"response_format": "b64_json",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(p.Image); err != nil {
		return nil, "", err
	}
	if len(p.Mask) > 0 {
		mwf, err := mw.CreateFormFile("mask", "mask.png")
		if err != nil {
			return nil, "", err
		}
		if _, err := mwf.Write(p.Mask); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// doImages executes a generate or edit call and normalizes the response.
func doImages(hc *http.Client, req *http.Request, p types.Provider, model string) (imagesResponse, http.Header, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return imagesResponse{}, nil, classifyTransport(err, p, model)
	}
	return readImages(resp, p, model)
}

// readImages drains and decodes an images response, classifying HTTP
// errors. It closes the body.
func readImages(resp *http.Response, p types.Provider, model string) (imagesResponse, http.Header, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return imagesResponse{}, nil, Wrap(KindProviderUnavailable, p, model, err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return imagesResponse{}, nil, classifyStatus(resp.StatusCode, body, p, model)
	}
	var ir imagesResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return imagesResponse{}, nil, Wrap(KindProviderUnavailable, p, model, err, "decode response")
	}
	return ir, resp.Header, nil
}
