// Package genai calls the generation provider. The provider is treated as an
// opaque endpoint that accepts JSON parameters and answers with one of
// several response shapes; Client normalises those shapes into Output and
// classifies failures as transient or terminal.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jewelshot/internal/domain"
	"jewelshot/internal/infra"
)

// Options controls how the provider client is configured.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Asset is one normalised provider artefact. Data is set when the provider
// returned the bytes inline instead of a URL.
type Asset struct {
	URL         string
	Width       int
	Height      int
	ContentType string
	Data        []byte
}

// Output is the normalised provider response.
type Output struct {
	Assets []Asset
}

// Client is the remote provider.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults. The HTTP client carries
// no timeout of its own; every call is bounded by Options.Timeout instead.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://fal.run"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{baseURL: baseURL, timeout: timeout, httpClient: client, logger: logger}
}

// Invoke posts params to endpoint using credential and normalises the reply.
func (c *Client) Invoke(ctx context.Context, endpoint string, params map[string]any, credential domain.Credential) (*Output, error) {
	if strings.TrimSpace(credential.Key) == "" {
		return nil, &domain.ProviderError{Class: domain.ProviderClassAuth, Message: "credential has no key"}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, &domain.ProviderError{Class: domain.ProviderClassValidation, Message: "marshal parameters", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ProviderError{Class: domain.ProviderClassValidation, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+credential.Key)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, transportError(err)
	}
	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("credential_id", credential.ID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("genai: provider responded")

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, classifyStatus(resp.StatusCode, raw)
	}

	assets, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	return &Output{Assets: assets}, nil
}

func transportError(err error) error {
	msg := "provider unreachable"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		msg = "provider call timed out"
	}
	return &domain.ProviderError{Class: domain.ProviderClassTransient, Message: msg, Err: err}
}

var contentPolicyMarkers = []string{"content_policy", "content policy", "nsfw", "safety", "moderation"}

// classifyStatus maps an HTTP failure to a provider error class. Timeouts,
// throttling and server faults are retryable; everything else is terminal.
func classifyStatus(status int, body []byte) error {
	msg := errorMessage(body)
	perr := &domain.ProviderError{StatusCode: status, Message: msg}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooEarly, status == http.StatusTooManyRequests, status >= 500:
		perr.Class = domain.ProviderClassTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		perr.Class = domain.ProviderClassAuth
	default:
		perr.Class = domain.ProviderClassValidation
		lower := strings.ToLower(msg)
		for _, marker := range contentPolicyMarkers {
			if strings.Contains(lower, marker) {
				perr.Class = domain.ProviderClassContentPolicy
				break
			}
		}
	}
	return perr
}

// errorMessage extracts a human readable message from the provider's error
// bodies: {"detail": "..."}, {"detail": [{"msg": "..."}]}, {"error": "..."}
// or {"error": {"message": "..."}}.
func errorMessage(body []byte) string {
	var shaped struct {
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil {
		for _, raw := range []json.RawMessage{shaped.Detail, shaped.Error} {
			if msg := messageFrom(raw); msg != "" {
				return msg
			}
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 500 {
		text = text[:500]
	}
	if text == "" {
		return "empty error body"
	}
	return text
}

func messageFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Type    string `json:"type"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return firstNonEmpty(obj.Message, obj.Msg, obj.Type)
	}
	var list []struct {
		Msg  string `json:"msg"`
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, firstNonEmpty(item.Type+": "+item.Msg, item.Msg))
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// String describes the client without credentials.
func (c *Client) String() string {
	return fmt.Sprintf("genai(%s)", c.baseURL)
}
