package llmclient

import (
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var ErrMissingAPIKey = errors.New("upstream api key is not configured")

// Attribution carries the optional OpenRouter ranking headers and the
// User-Agent sent with every upstream call.
type Attribution struct {
	Referer   string
	Title     string
	UserAgent string
}

func (a Attribution) WrapRoundTripper(base http.RoundTripper) http.RoundTripper {
	return attributionRoundTripper{
		Base:      base,
		Referer:   strings.TrimSpace(a.Referer),
		Title:     strings.TrimSpace(a.Title),
		UserAgent: strings.TrimSpace(a.UserAgent),
	}
}

type attributionRoundTripper struct {
	Base      http.RoundTripper
	Referer   string
	Title     string
	UserAgent string
}

func (rt attributionRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if rt.Referer == "" && rt.Title == "" && rt.UserAgent == "" {
		return base.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.Header = req.Header.Clone()
	if rt.Referer != "" {
		out.Header.Set("HTTP-Referer", rt.Referer)
	}
	if rt.Title != "" {
		out.Header.Set("X-Title", rt.Title)
	}
	if rt.UserAgent != "" {
		out.Header.Set("User-Agent", rt.UserAgent)
	}
	return base.RoundTrip(out)
}

type Options struct {
	APIKey      string
	BaseURL     string
	Attribution Attribution
	// HeaderTimeout bounds the wait for upstream response headers. The body
	// of a streaming response is not covered; use the request context for that.
	HeaderTimeout time.Duration
	Transport     http.RoundTripper
}

// New builds an OpenAI-compatible client. It refuses to build one without
// credentials so callers can surface a configuration error before any
// network traffic.
func New(opts Options) (*openai.Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	cfg := openai.DefaultConfig(key)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.HeaderTimeout > 0 {
			t.ResponseHeaderTimeout = opts.HeaderTimeout
		}
		transport = t
	}
	cfg.HTTPClient = &http.Client{Transport: opts.Attribution.WrapRoundTripper(transport)}
	return openai.NewClientWithConfig(cfg), nil
}
