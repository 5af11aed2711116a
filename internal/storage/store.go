// Package storage persists generated images on local disk and resolves
// image references back to bytes, fetching external URLs over HTTP.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Load for unknown local references.
var ErrNotFound = errors.New("image not found")

// fetchTimeout bounds external URL downloads for edit-by-URL.
const fetchTimeout = 30 * time.Second

// Store writes images under a directory and serves them by URL under
// baseURL + "/images/". Saving is best-effort from the caller's point of
// view: generation still succeeds with inline bytes when a write fails.
type Store struct {
	dir       string
	baseURL   string
	saveLocal bool
	hc        *http.Client
	log       zerolog.Logger
}

// New creates the storage directory if needed. dir may start with '~'.
func New(dir, baseURL string, saveLocal bool, log zerolog.Logger) (*Store, error) {
	expanded, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if saveLocal {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &Store{
		dir:       abs,
		baseURL:   strings.TrimRight(baseURL, "/"),
		saveLocal: saveLocal,
		hc:        &http.Client{Timeout: fetchTimeout},
		log:       log,
	}, nil
}

// Dir returns the absolute storage directory, for static file serving.
func (s *Store) Dir() string { return s.dir }

// Save writes the image under a random name and returns its public URL.
func (s *Store) Save(data []byte, ext string) (string, error) {
	if ext == "" {
		ext = "png"
	}
	name := uuid.NewString() + "." + ext
	if s.saveLocal {
		if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
			return "", fmt.Errorf("write image: %w", err)
		}
	}
	return s.baseURL + "/images/" + name, nil
}

// Load resolves a reference to bytes. References under our base URL (or
// a bare /images/ path) are read from disk; anything else is fetched
// over HTTP.
func (s *Store) Load(ctx context.Context, ref string) ([]byte, error) {
	if name, ok := s.localName(ref); ok {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return data, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}

// localName extracts the filename when ref points at this store.
func (s *Store) localName(ref string) (string, bool) {
	if strings.HasPrefix(ref, s.baseURL+"/images/") || strings.HasPrefix(ref, "/images/") {
		// Reject path traversal in the final element.
		name := filepath.Base(ref)
		if name == "." || name == ".." || name == "/" {
			return "", false
		}
		return name, true
	}
	return "", false
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
