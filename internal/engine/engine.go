// Package engine binds the chat front-end to an external local LLM runtime.
//
// The runtime does all model work. This package only exposes the narrow
// contract the UI controller needs: load a model with progress reports,
// then request chat completions from the loaded handle.
package engine

import (
	"context"

	apierrors "github.com/diogo/localchat/internal/errors"
)

// ChatMessage is a single message sent to or received from the runtime
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries the messages and sampling parameters of one call
type CompletionRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// Choice is one candidate reply
type Choice struct {
	Message ChatMessage
}

// Reply mirrors the chat-completions response shape
type Reply struct {
	Choices []Choice
}

// Text returns the content of the first choice
func (r *Reply) Text() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", apierrors.ErrEmptyReply
	}
	return r.Choices[0].Message.Content, nil
}

// ProgressReport is emitted while a model loads. Progress is nil when the
// current step has no measurable fraction.
type ProgressReport struct {
	Progress *float64
	Text     string
}

// Fraction returns a report with both fields set
func Fraction(p float64, text string) ProgressReport {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return ProgressReport{Progress: &p, Text: text}
}

// Step returns a text-only report
func Step(text string) ProgressReport {
	return ProgressReport{Text: text}
}

// LoadConfig configures a single Load call
type LoadConfig struct {
	// Progress receives load reports. May be nil.
	Progress func(ProgressReport)
	// LogLevel controls how chatty the adapter is about the load.
	LogLevel string
}

func (c LoadConfig) report(r ProgressReport) {
	if c.Progress != nil {
		c.Progress(r)
	}
}

// Engine is a handle to a loaded model
type Engine interface {
	Complete(ctx context.Context, req CompletionRequest) (*Reply, error)
	RuntimeStatsText() string
	Close() error
}

// Loader creates engines. Implementations block until the model is ready.
type Loader interface {
	Load(ctx context.Context, modelID string, cfg LoadConfig) (Engine, error)
}
