package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/localchat/internal/errors"
	"github.com/diogo/localchat/internal/logging"
	"github.com/diogo/localchat/internal/models"
)

// OllamaLoader loads models through an Ollama server
type OllamaLoader struct {
	transport
	keepAlive string
}

// NewOllamaLoader creates a loader for the Ollama server at baseURL
func NewOllamaLoader(baseURL string, opts ...Option) (*OllamaLoader, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = models.DefaultOllamaURL
	}
	return &OllamaLoader{
		transport: transport{
			baseURL: strings.TrimRight(baseURL, "/"),
			client:  o.client,
			logger:  o.logger.With("backend", models.BackendOllama),
		},
		keepAlive: o.keepAlive,
	}, nil
}

type ollamaShowRequest struct {
	Model string `json:"model"`
}

type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Stream    bool   `json:"stream"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model     string            `json:"model"`
	Messages  []ChatMessage     `json:"messages"`
	Stream    bool              `json:"stream"`
	Options   ollamaChatOptions `json:"options"`
	KeepAlive string            `json:"keep_alive,omitempty"`
}

// Load pulls the model unless the server already has it (reporting
// download progress) and then asks the server to bring it into memory.
func (l *OllamaLoader) Load(ctx context.Context, modelID string, cfg LoadConfig) (Engine, error) {
	if modelID == "" {
		return nil, fmt.Errorf("model identifier cannot be empty")
	}

	logger := l.logger.With("model", modelID)
	verbose := logging.ParseLevel(cfg.LogLevel) <= slog.LevelDebug
	start := time.Now()

	cfg.report(Fraction(0, "Connecting to "+l.baseURL))

	req, err := l.newRequest(ctx, http.MethodGet, models.EndpointOllamaHealth, nil)
	if err != nil {
		return nil, err
	}
	version, err := l.sendAndRead(ctx, req, "health check", models.EndpointOllamaHealth)
	if err != nil {
		return nil, err
	}
	logger.Debug("runtime reachable", "version", gjson.GetBytes(version, "version").String())

	if l.hasModel(ctx, modelID, logger) {
		cfg.report(Step("Found " + modelID + " in the local cache"))
	} else if err := l.pull(ctx, modelID, cfg, logger, verbose, start); err != nil {
		return nil, err
	}

	cfg.report(Step("Loading model into memory..."))
	req, err = l.newRequest(ctx, http.MethodPost, models.EndpointOllamaGenerate, ollamaGenerateRequest{
		Model:     modelID,
		Stream:    false,
		KeepAlive: l.keepAlive,
	})
	if err != nil {
		return nil, err
	}
	if _, err := l.sendAndRead(ctx, req, "load model", models.EndpointOllamaGenerate); err != nil {
		return nil, mapOllamaError(err, modelID)
	}

	elapsed := time.Since(start).Round(time.Second)
	cfg.report(Fraction(1, fmt.Sprintf("Finish loading on %s, %d secs elapsed.", l.baseURL, int(elapsed.Seconds()))))
	logger.Info("model loaded", "elapsed", elapsed)

	return &ollamaEngine{
		transport: l.transport,
		model:     modelID,
		keepAlive: l.keepAlive,
	}, nil
}

// hasModel reports whether the server already stores modelID. A pull would
// contact the registry even for a local model, which fails offline.
func (l *OllamaLoader) hasModel(ctx context.Context, modelID string, logger *slog.Logger) bool {
	req, err := l.newRequest(ctx, http.MethodPost, models.EndpointOllamaShow, ollamaShowRequest{Model: modelID})
	if err != nil {
		return false
	}
	if _, err := l.sendAndRead(ctx, req, "show model", models.EndpointOllamaShow); err != nil {
		logger.Debug("model not in local cache", "error", err)
		return false
	}
	return true
}

// pull streams /api/pull. Each NDJSON line is a status update; layers being
// downloaded carry total and completed byte counts.
func (l *OllamaLoader) pull(ctx context.Context, modelID string, cfg LoadConfig, logger *slog.Logger, verbose bool, start time.Time) error {
	req, err := l.newRequest(ctx, http.MethodPost, models.EndpointOllamaPull, ollamaPullRequest{Model: modelID, Stream: true})
	if err != nil {
		return err
	}

	resp, err := l.send(ctx, req, "pull model", models.EndpointOllamaPull)
	if err != nil {
		return mapOllamaError(err, modelID)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	done := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return apierrors.NewParseError("invalid pull status line", models.EndpointOllamaPull)
		}

		status := gjson.ParseBytes(line)
		if msg := status.Get("error"); msg.Exists() {
			return mapOllamaError(apierrors.NewAPIError(0, models.EndpointOllamaPull, msg.String()), modelID)
		}

		if status.Get("status").String() == "success" {
			done = true
		}

		report := pullReport(status, time.Since(start))
		if verbose {
			logger.Debug("pull progress", "status", report.Text)
		}
		cfg.report(report)
	}

	if err := scanner.Err(); err != nil {
		return classifyTransportError(ctx, "pull model", models.EndpointOllamaPull, err)
	}
	if !done {
		return apierrors.NewParseError("pull stream ended before success", models.EndpointOllamaPull)
	}
	return nil
}

// pullReport converts one pull status line into a progress report
func pullReport(status gjson.Result, elapsed time.Duration) ProgressReport {
	text := status.Get("status").String()
	total := status.Get("total").Int()
	completed := status.Get("completed").Int()
	secs := int(elapsed.Round(time.Second).Seconds())

	if total > 0 {
		fraction := float64(completed) / float64(total)
		return Fraction(fraction, fmt.Sprintf("%s: %s / %s fetched. %d%% completed, %d secs elapsed.",
			text,
			humanize.Bytes(uint64(completed)),
			humanize.Bytes(uint64(total)),
			int(fraction*100+0.5),
			secs))
	}
	if text == "success" {
		return Fraction(1, "Model files ready")
	}
	return Step(text)
}

// mapOllamaError turns "model not found" style responses into ModelNotFoundError
func mapOllamaError(err error, modelID string) error {
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == http.StatusNotFound {
		return apierrors.NewModelNotFoundError(modelID)
	}
	msg := strings.ToLower(apiErr.Message)
	if strings.Contains(msg, "file does not exist") || strings.Contains(msg, "not found") {
		return apierrors.NewModelNotFoundError(modelID)
	}
	return err
}

// ollamaEngine is a model resident in an Ollama server
type ollamaEngine struct {
	transport
	model     string
	keepAlive string
	stats     runtimeStats

	mu     sync.RWMutex
	closed bool
}

// Complete sends a non-streaming /api/chat request
func (e *ollamaEngine) Complete(ctx context.Context, creq CompletionRequest) (*Reply, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, apierrors.ErrEngineClosed
	}

	req, err := e.newRequest(ctx, http.MethodPost, models.EndpointOllamaChat, ollamaChatRequest{
		Model:    e.model,
		Messages: creq.Messages,
		Stream:   false,
		Options: ollamaChatOptions{
			Temperature: creq.Temperature,
			NumPredict:  creq.MaxTokens,
		},
		KeepAlive: e.keepAlive,
	})
	if err != nil {
		return nil, err
	}

	body, err := e.sendAndRead(ctx, req, "chat completion", models.EndpointOllamaChat)
	if err != nil {
		return nil, mapOllamaError(err, e.model)
	}

	if !gjson.ValidBytes(body) {
		return nil, apierrors.NewParseError("response is not valid JSON", models.EndpointOllamaChat)
	}
	result := gjson.ParseBytes(body)
	content := result.Get("message.content")
	if !content.Exists() {
		return nil, apierrors.NewParseError("missing message content", "message.content")
	}

	e.stats.record(
		int(result.Get("prompt_eval_count").Int()),
		time.Duration(result.Get("prompt_eval_duration").Int()),
		int(result.Get("eval_count").Int()),
		time.Duration(result.Get("eval_duration").Int()),
	)

	role := result.Get("message.role").String()
	if role == "" {
		role = string(models.RoleAssistant)
	}

	return &Reply{Choices: []Choice{{Message: ChatMessage{Role: role, Content: content.String()}}}}, nil
}

// RuntimeStatsText reports throughput of the last completion
func (e *ollamaEngine) RuntimeStatsText() string {
	return e.stats.Text()
}

// Close marks the handle unusable. The model stays resident until Ollama's
// keep-alive expires.
func (e *ollamaEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
