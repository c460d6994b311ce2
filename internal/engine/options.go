package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/diogo/localchat/internal/logging"
	"github.com/diogo/localchat/internal/models"
)

// Option configures a runtime loader
type Option func(*options)

type options struct {
	client    Doer
	timeout   time.Duration
	logger    *slog.Logger
	keepAlive string
}

// WithHTTPClient replaces the default tls-client transport
func WithHTTPClient(client Doer) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithTimeout bounds each runtime request. Zero means no limit.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithKeepAlive sets how long Ollama keeps the model resident after a request
func WithKeepAlive(d string) Option {
	return func(o *options) {
		o.keepAlive = d
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{
		logger:    logging.Discard(),
		keepAlive: "30m",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		client, err := NewHTTPClient(o.timeout)
		if err != nil {
			return o, err
		}
		o.client = client
	}
	return o, nil
}

// NewLoader returns the loader for the named backend
func NewLoader(backend, baseURL string, opts ...Option) (Loader, error) {
	switch strings.ToLower(backend) {
	case models.BackendOllama, "":
		return NewOllamaLoader(baseURL, opts...)
	case models.BackendOpenAI:
		return NewOpenAILoader(baseURL, opts...)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
