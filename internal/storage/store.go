// Package storage persists generated assets and resolves them back to bytes.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ObjectStore is the minimal surface the engine needs from a blob store.
type ObjectStore interface {
	// Put stores data under key and returns a URL clients can fetch.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// KeyFromURL reports the key when rawURL points into this store.
	KeyFromURL(rawURL string) (string, bool)
}

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("storage: object not found")

const maxFetchBytes = 64 << 20

// Fetch loads the bytes behind a result reference. References into store are
// read directly; data: URIs are decoded; anything else is downloaded.
func Fetch(ctx context.Context, store ObjectStore, client *http.Client, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("storage: empty reference")
	}
	if store != nil {
		if key, ok := store.KeyFromURL(ref); ok {
			return store.Get(ctx, key)
		}
	}
	if strings.HasPrefix(ref, "data:") {
		_, data, err := DecodeDataURI(ref)
		return data, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storage: download %s: status %d", ref, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
}

// DecodeDataURI splits a data: URI into its media type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, errors.New("storage: malformed data uri")
	}
	mime := strings.Split(header, ";")[0]
	if !strings.HasSuffix(header, ";base64") {
		return mime, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("storage: decode data uri: %w", err)
	}
	return mime, data, nil
}

// ExtensionFor maps a content type to a file extension.
func ExtensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "video/mp4":
		return "mp4"
	case "image/png", "":
		return "png"
	default:
		return "bin"
	}
}
