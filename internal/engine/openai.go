package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/localchat/internal/errors"
	"github.com/diogo/localchat/internal/models"
)

// OpenAILoader targets servers speaking the OpenAI chat-completions API
// (llama.cpp server, vLLM, LM Studio). Those servers load weights at
// startup, so Load only verifies the model is being served.
type OpenAILoader struct {
	transport
}

// NewOpenAILoader creates a loader for the server at baseURL
func NewOpenAILoader(baseURL string, opts ...Option) (*OpenAILoader, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = models.DefaultOpenAIURL
	}
	return &OpenAILoader{
		transport: transport{
			baseURL: strings.TrimRight(baseURL, "/"),
			client:  o.client,
			logger:  o.logger.With("backend", models.BackendOpenAI),
		},
	}, nil
}

type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// Load checks /v1/models for modelID
func (l *OpenAILoader) Load(ctx context.Context, modelID string, cfg LoadConfig) (Engine, error) {
	if modelID == "" {
		return nil, fmt.Errorf("model identifier cannot be empty")
	}

	cfg.report(Fraction(0, "Checking models served by "+l.baseURL))

	req, err := l.newRequest(ctx, http.MethodGet, models.EndpointOpenAIModels, nil)
	if err != nil {
		return nil, err
	}
	body, err := l.sendAndRead(ctx, req, "list models", models.EndpointOpenAIModels)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, apierrors.NewParseError("response is not valid JSON", models.EndpointOpenAIModels)
	}

	ids := gjson.GetBytes(body, "data.#.id").Array()
	found := false
	for _, id := range ids {
		if id.String() == modelID {
			found = true
			break
		}
	}
	if !found {
		return nil, apierrors.NewModelNotFoundError(modelID)
	}

	cfg.report(Fraction(1, "Model "+modelID+" is available"))
	l.logger.Info("model available", "model", modelID, "served", len(ids))

	return &openAIEngine{transport: l.transport, model: modelID}, nil
}

// openAIEngine is a model served by an OpenAI-compatible server
type openAIEngine struct {
	transport
	model string
	stats runtimeStats

	mu     sync.RWMutex
	closed bool
}

// Complete sends a non-streaming chat-completions request
func (e *openAIEngine) Complete(ctx context.Context, creq CompletionRequest) (*Reply, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, apierrors.ErrEngineClosed
	}

	req, err := e.newRequest(ctx, http.MethodPost, models.EndpointOpenAIChat, openAIChatRequest{
		Model:       e.model,
		Messages:    creq.Messages,
		Temperature: creq.Temperature,
		MaxTokens:   creq.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := e.sendAndRead(ctx, req, "chat completion", models.EndpointOpenAIChat)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if !gjson.ValidBytes(body) {
		return nil, apierrors.NewParseError("response is not valid JSON", models.EndpointOpenAIChat)
	}
	result := gjson.ParseBytes(body)

	reply := &Reply{}
	result.Get("choices").ForEach(func(_, choice gjson.Result) bool {
		reply.Choices = append(reply.Choices, Choice{Message: ChatMessage{
			Role:    choice.Get("message.role").String(),
			Content: choice.Get("message.content").String(),
		}})
		return true
	})
	if len(reply.Choices) == 0 {
		return nil, apierrors.ErrEmptyReply
	}

	// Without server timings the whole round trip is attributed to decode
	e.stats.record(
		int(result.Get("usage.prompt_tokens").Int()),
		0,
		int(result.Get("usage.completion_tokens").Int()),
		elapsed,
	)
	// llama.cpp reports its own timings
	if timings := result.Get("timings"); timings.Exists() {
		e.stats.recordRates(
			timings.Get("prompt_per_second").Float(),
			timings.Get("predicted_per_second").Float(),
		)
	}

	return reply, nil
}

// RuntimeStatsText reports throughput of the last completion
func (e *openAIEngine) RuntimeStatsText() string {
	return e.stats.Text()
}

// Close marks the handle unusable
func (e *openAIEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
