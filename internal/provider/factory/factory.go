package factory

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"boq-estimator/internal/config"
	"boq-estimator/internal/provider"
	claudeProvider "boq-estimator/internal/provider/claude"
	geminiProvider "boq-estimator/internal/provider/gemini"
	openaiProvider "boq-estimator/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// New constructs the configured provider wrapped with metrics. The result
// implements io.Closer.
func New(ctx context.Context, cfg config.ProviderConfig) (provider.Provider, error) {
	var (
		p   provider.Provider
		err error
	)

	switch cfg.Kind {
	case config.KindOpenAI:
		p, err = openaiProvider.New(cfg.Kind, cfg, newHTTPClient(cfg.Timeout))
	case config.KindClaude:
		p, err = claudeProvider.New(cfg.Kind, cfg, newHTTPClient(cfg.Timeout))
	case config.KindGemini:
		p, err = geminiProvider.New(ctx, cfg.Kind, cfg)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("initialise %s provider: %w", cfg.Kind, err)
	}

	return provider.WithMetrics(p), nil
}

// A zero timeout leaves the client unbounded; streamed completions can run for minutes.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
