package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/localchat/internal/errors"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics
const maxErrorBody = 4096

// Doer sends HTTP requests. tls_client.HttpClient satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient creates the HTTP client used to talk to the runtime.
// A zero timeout leaves requests bounded only by their context.
func NewHTTPClient(timeout time.Duration) (Doer, error) {
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(timeout / time.Second)),
		tls_client.WithClientProfile(profiles.Chrome_120),
		tls_client.WithNotFollowRedirects(),
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return client, nil
}

// transport holds what both runtime bindings share
type transport struct {
	baseURL string
	client  Doer
	logger  *slog.Logger
}

// newRequest builds a JSON request against the runtime
func (t *transport) newRequest(ctx context.Context, method, endpoint string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// send executes req and converts transport failures and non-2xx statuses
// into typed errors. On success the caller owns resp.Body.
func (t *transport) send(ctx context.Context, req *http.Request, operation, endpoint string) (*http.Response, error) {
	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, operation, endpoint, err)
	}

	t.logger.Debug("runtime request",
		"operation", operation,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apierrors.NewAPIErrorWithBody(resp.StatusCode, endpoint, errorMessage(body, operation+" failed"), string(body))
	}

	return resp, nil
}

// sendAndRead is send followed by reading the whole body
func (t *transport) sendAndRead(ctx context.Context, req *http.Request, operation, endpoint string) ([]byte, error) {
	resp, err := t.send(ctx, req, operation, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, operation, endpoint, err)
	}
	return body, nil
}

// classifyTransportError maps a failed round trip to the error taxonomy
func classifyTransportError(ctx context.Context, operation, endpoint string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apierrors.NewTimeoutError(operation)
		}
		return fmt.Errorf("%s: %w", operation, ctxErr)
	}
	return apierrors.NewNetworkErrorWithEndpoint(operation, endpoint, err)
}

// errorMessage extracts a readable message from an error body. Ollama uses
// {"error": "..."}, OpenAI-compatible servers {"error": {"message": "..."}}.
func errorMessage(body []byte, fallback string) string {
	if !gjson.ValidBytes(body) {
		return fallback
	}
	result := gjson.ParseBytes(body)
	if msg := result.Get("error.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	if msg := result.Get("error"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return fallback
}
