package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultPath         = "/{key}"
	defaultMaxBodyBytes = 8 << 20
)

// HTTP resolves keys with a GET against a JSON API.
type HTTP struct {
	name    string
	baseURL string
	path    string
	extract string
	headers map[string]string
	maxBody int64
	timeout time.Duration
	client  *http.Client
}

// HTTPOptions configures an HTTP source. Zero values select defaults.
type HTTPOptions struct {
	Path         string // may contain {key}; default "/{key}"
	Extract      string // gjson path; empty returns the whole body
	Headers      map[string]string
	MaxBodyBytes int64
	Timeout      time.Duration // per resolution; 0 relies on the caller's context
}

// NewHTTP creates an HTTP source. The client should carry auth in its
// transport chain; nil uses a default client.
func NewHTTP(name, baseURL string, client *http.Client, opts HTTPOptions) *HTTP {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Path == "" {
		opts.Path = defaultPath
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &HTTP{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    opts.Path,
		extract: opts.Extract,
		headers: opts.Headers,
		maxBody: opts.MaxBodyBytes,
		timeout: opts.Timeout,
		client:  client,
	}
}

// Name returns the source name.
func (h *HTTP) Name() string { return h.name }

// URL returns the upstream URL for key. Each "/"-separated segment of the key
// is path-escaped, so "posts/1" maps to ".../posts/1".
func (h *HTTP) URL(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return h.baseURL + strings.ReplaceAll(h.path, "{key}", strings.Join(segs, "/"))
}

// Resolve fetches key from the upstream and returns the (optionally extracted)
// JSON document.
func (h *HTTP) Resolve(ctx context.Context, key string) (json.RawMessage, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", h.name, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", h.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Source: h.name, StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Read one byte past the cap so oversized bodies are detected, not truncated.
	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", h.name, err)
	}
	if int64(len(body)) > h.maxBody {
		return nil, fmt.Errorf("%s: response exceeds %d bytes", h.name, h.maxBody)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: response is not valid JSON", h.name)
	}
	if h.extract == "" {
		return body, nil
	}

	r := gjson.GetBytes(body, h.extract)
	if !r.Exists() {
		return nil, fmt.Errorf("%s: path %q not found in response", h.name, h.extract)
	}
	return json.RawMessage(r.Raw), nil
}
