// Package models contains data types and constants for localchat.
package models

// Endpoints exposed by the supported local runtimes
const (
	EndpointOllamaHealth   = "/api/version"
	EndpointOllamaShow     = "/api/show"
	EndpointOllamaPull     = "/api/pull"
	EndpointOllamaGenerate = "/api/generate"
	EndpointOllamaChat     = "/api/chat"
	EndpointOpenAIModels   = "/v1/models"
	EndpointOpenAIChat     = "/v1/chat/completions"
)

// Backend names accepted in configuration
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Default base URLs per backend
const (
	DefaultOllamaURL = "http://127.0.0.1:11434"
	DefaultOpenAIURL = "http://127.0.0.1:8080"
)

// Completion defaults applied to every chat request
const (
	DefaultSystemPrompt = "You are a helpful business AI assistant. Provide clear, concise answers."
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 500
	DefaultLogLevel     = "INFO"
)

// Transcript notices
const (
	NoticeNoAcceleration = "No GPU acceleration detected. The model will run on CPU (slower)."
	NoticeAlreadyLoaded  = "Model is already loaded!"
	NoticeChatCleared    = "Chat cleared. Ready for new conversation."
	PlaceholderThinking  = "Thinking..."
)

// ModelSpec describes a model preset the runtime can serve
type ModelSpec struct {
	ID          string // Runtime identifier, e.g. "phi3:mini"
	DisplayName string
	License     string
}

// Available presets
var (
	ModelPhi3Mini = ModelSpec{
		ID:          "phi3:mini",
		DisplayName: "Phi-3 Mini",
		License:     "MIT",
	}

	ModelPhi35Mini = ModelSpec{
		ID:          "phi3.5",
		DisplayName: "Phi-3.5 Mini",
		License:     "MIT",
	}

	ModelLlama32 = ModelSpec{
		ID:          "llama3.2:3b",
		DisplayName: "Llama 3.2 3B",
		License:     "Llama 3.2 Community",
	}

	ModelQwen25 = ModelSpec{
		ID:          "qwen2.5:3b",
		DisplayName: "Qwen 2.5 3B",
		License:     "Qwen Research",
	}

	// DefaultModel is the preset loaded when nothing else is configured
	DefaultModel = ModelPhi3Mini
)

// AllModels returns every known preset
func AllModels() []ModelSpec {
	return []ModelSpec{ModelPhi3Mini, ModelPhi35Mini, ModelLlama32, ModelQwen25}
}

// ModelFromID returns the preset for id. Unknown identifiers are passed
// through with the identifier doubling as the display name.
func ModelFromID(id string) ModelSpec {
	if id == "" {
		return DefaultModel
	}
	for _, m := range AllModels() {
		if m.ID == id {
			return m
		}
	}
	return ModelSpec{ID: id, DisplayName: id}
}

// SuccessNotice is the system message shown after a model finishes loading
func (m ModelSpec) SuccessNotice() string {
	if m.License != "" {
		return m.DisplayName + " loaded successfully! " + m.License + " licensed model ready to chat."
	}
	return m.DisplayName + " loaded successfully! Ready to chat."
}
