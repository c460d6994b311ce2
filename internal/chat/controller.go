// Package chat coordinates the terminal surface with the local runtime.
//
// The Controller owns the load state, the engine handle and the transcript.
// The host surface reads Controls snapshots and forwards user actions; all
// model work happens inside the runtime behind engine.Loader.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/diogo/localchat/internal/engine"
	"github.com/diogo/localchat/internal/gpu"
	"github.com/diogo/localchat/internal/logging"
	"github.com/diogo/localchat/internal/models"
	"github.com/diogo/localchat/internal/transcript"
)

// LoadState is the lifecycle of the model within a session
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

// Labels shown on the host surface
const (
	LoadLabel        = "Load Model"
	LoadingLabel     = "Loading..."
	LoadedLabel      = "Model Loaded ✓"
	StatusNotLoaded  = "Model not loaded"
	StatusLoadingFmt = "Loading %s..."
	StatusLoadedFmt  = "%s Loaded"
)

// Params are the sampling parameters of every completion
type Params struct {
	Temperature float64
	MaxTokens   int
}

// DefaultParams returns temperature 0.7 and 500 output tokens
func DefaultParams() Params {
	return Params{Temperature: models.DefaultTemperature, MaxTokens: models.DefaultMaxTokens}
}

// Controls is a snapshot of what the host surface should display
type Controls struct {
	LoadEnabled bool
	LoadLabel   string

	InputEnabled bool
	SendEnabled  bool
	// FocusInput is set once after a send completes
	FocusInput bool

	OverlayVisible bool
	OverlayPercent int
	OverlayText    string

	StatusText string
	Loaded     bool
	Sending    bool
}

// DebugInfo is what the debug accessor exposes
type DebugInfo struct {
	Engine       engine.Engine
	Loaded       bool
	RuntimeStats string
}

// Controller drives one chat session. Use NewController; the zero value
// is not usable.
type Controller struct {
	loader       engine.Loader
	model        models.ModelSpec
	systemPrompt string
	params       Params
	probe        gpu.Probe
	logger       *slog.Logger
	notify       chan<- struct{}
	logLevel     string

	store *transcript.Store

	mu       sync.Mutex
	state    LoadState
	engine   engine.Engine
	sending  bool
	focus    bool
	overlay  overlay
	status   string
	lastErr  error
	cancelFn context.CancelFunc
}

type overlay struct {
	visible bool
	percent int
	text    string
}

// Option configures a Controller
type Option func(*Controller)

// WithModel sets the model to load
func WithModel(spec models.ModelSpec) Option {
	return func(c *Controller) {
		if spec.ID != "" {
			c.model = spec
		}
	}
}

// WithSystemPrompt replaces the fixed system prompt
func WithSystemPrompt(prompt string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(prompt) != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithParams sets the sampling parameters
func WithParams(p Params) Option {
	return func(c *Controller) {
		c.params = p
	}
}

// WithProbe sets the capability probe used by Initialize
func WithProbe(p gpu.Probe) Option {
	return func(c *Controller) {
		c.probe = p
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotify registers a channel that receives a value after every state
// change. Sends never block; a full channel means an update is pending.
func WithNotify(ch chan<- struct{}) Option {
	return func(c *Controller) {
		c.notify = ch
	}
}

// WithLogLevel sets the log level passed to the runtime loader
func WithLogLevel(level string) Option {
	return func(c *Controller) {
		if level != "" {
			c.logLevel = level
		}
	}
}

// NewController creates a controller around loader
func NewController(loader engine.Loader, opts ...Option) *Controller {
	c := &Controller{
		loader:       loader,
		model:        models.DefaultModel,
		systemPrompt: models.DefaultSystemPrompt,
		params:       DefaultParams(),
		logger:       logging.Discard(),
		logLevel:     models.DefaultLogLevel,
		store:        transcript.NewStore(),
		status:       StatusNotLoaded,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chat", "model", c.model.ID)
	return c
}

// Transcript returns the session transcript
func (c *Controller) Transcript() *transcript.Store {
	return c.store
}

// Model returns the model this controller loads
func (c *Controller) Model() models.ModelSpec {
	return c.model
}

// Initialize runs the capability probe and warns when inference will run
// on CPU. It never fails.
func (c *Controller) Initialize(ctx context.Context) {
	if c.probe == nil {
		return
	}
	capability := c.probe.Detect(ctx)
	c.logger.Info("capability probe", "accelerated", capability.Accelerated, "backend", capability.Backend, "device", capability.Device)
	if !capability.Accelerated {
		c.store.Append(models.RoleSystem, models.NoticeNoAcceleration)
		c.changed()
	}
}

// LoadModel loads the configured model. It blocks until the runtime
// reports success or failure and is meant to run off the UI loop.
func (c *Controller) LoadModel(ctx context.Context) {
	c.mu.Lock()
	switch c.state {
	case Loaded:
		c.mu.Unlock()
		c.store.Append(models.RoleSystem, models.NoticeAlreadyLoaded)
		c.changed()
		return
	case Loading:
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.state = Loading
	c.cancelFn = cancel
	c.overlay = overlay{visible: true}
	c.status = fmt.Sprintf(StatusLoadingFmt, c.model.DisplayName)
	c.mu.Unlock()
	c.changed()

	defer func() {
		cancel()
		c.mu.Lock()
		c.overlay.visible = false
		c.cancelFn = nil
		c.mu.Unlock()
		c.changed()
	}()

	start := time.Now()
	c.logger.Info("loading model")

	eng, err := c.loader.Load(ctx, c.model.ID, engine.LoadConfig{
		Progress: c.onProgress,
		LogLevel: c.logLevel,
	})
	if err == nil && eng == nil {
		err = fmt.Errorf("runtime returned no engine")
	}
	if err != nil {
		c.logger.Error("model load failed", "error", err, "elapsed", time.Since(start))
		c.mu.Lock()
		c.state = Unloaded
		c.status = StatusNotLoaded
		c.lastErr = err
		c.mu.Unlock()
		c.store.Append(models.RoleError, fmt.Sprintf("Error loading model: %v", err))
		return
	}

	c.mu.Lock()
	c.engine = eng
	c.state = Loaded
	c.lastErr = nil
	c.status = fmt.Sprintf(StatusLoadedFmt, c.model.DisplayName)
	c.mu.Unlock()
	c.store.Append(models.RoleSystem, c.model.SuccessNotice())
	c.logger.Info("model loaded", "elapsed", time.Since(start))
}

// onProgress applies a load report. Absent fields keep their prior value.
func (c *Controller) onProgress(r engine.ProgressReport) {
	c.mu.Lock()
	if r.Progress != nil {
		c.overlay.percent = int(math.Round(*r.Progress * 100))
	}
	if r.Text != "" {
		c.overlay.text = r.Text
	}
	c.mu.Unlock()
	c.changed()
}

// SendMessage sends input to the loaded model. Empty input, an unloaded
// model or a request already in flight make it a no-op. It reports whether
// the message was accepted so the host can clear its draft.
func (c *Controller) SendMessage(ctx context.Context, input string) bool {
	text := strings.TrimSpace(input)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.state != Loaded || c.engine == nil || c.sending {
		c.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	eng := c.engine
	c.sending = true
	c.focus = false
	c.cancelFn = cancel
	c.mu.Unlock()

	c.store.Append(models.RoleUser, text)
	placeholder := c.store.Append(models.RoleAssistant, models.PlaceholderThinking)
	c.changed()

	defer func() {
		cancel()
		c.mu.Lock()
		c.sending = false
		c.focus = true
		c.cancelFn = nil
		c.mu.Unlock()
		c.changed()
	}()

	start := time.Now()
	reply, err := eng.Complete(ctx, engine.CompletionRequest{
		Messages: []engine.ChatMessage{
			{Role: string(models.RoleSystem), Content: c.systemPrompt},
			{Role: string(models.RoleUser), Content: text},
		},
		Temperature: c.params.Temperature,
		MaxTokens:   c.params.MaxTokens,
	})
	if err == nil {
		var content string
		content, err = reply.Text()
		if err == nil {
			c.setLastErr(nil)
			c.store.Remove(placeholder)
			c.store.Append(models.RoleAssistant, content)
			c.logger.Info("completion finished", "elapsed", time.Since(start), "chars", len(content))
			return true
		}
	}

	c.logger.Error("completion failed", "error", err, "elapsed", time.Since(start))
	c.setLastErr(err)
	c.store.Remove(placeholder)
	c.store.Append(models.RoleError, fmt.Sprintf("Error: %v", err))
	return true
}

// ClearChat empties the transcript and leaves a single notice. Load state
// and the engine are untouched.
func (c *Controller) ClearChat() {
	c.store.Clear()
	c.store.Append(models.RoleSystem, models.NoticeChatCleared)
	c.changed()
}

// Cancel aborts the in-flight load or completion, if any. The aborted call
// fails like any other.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	cancel := c.cancelFn
	c.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Busy reports whether a load or completion is in flight
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Loading || c.sending
}

// Loaded reports whether the model is loaded
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Loaded
}

// State returns the current load state
func (c *Controller) State() LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Controls returns the current host surface state. A pending focus request
// is consumed by this call.
func (c *Controller) Controls() Controls {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := c.state == Loaded
	ctl := Controls{
		LoadEnabled:    c.state == Unloaded,
		LoadLabel:      LoadLabel,
		InputEnabled:   loaded && !c.sending,
		SendEnabled:    loaded && !c.sending,
		FocusInput:     c.focus,
		OverlayVisible: c.overlay.visible,
		OverlayPercent: c.overlay.percent,
		OverlayText:    c.overlay.text,
		StatusText:     c.status,
		Loaded:         loaded,
		Sending:        c.sending,
	}
	switch c.state {
	case Loading:
		ctl.LoadLabel = LoadingLabel
	case Loaded:
		ctl.LoadLabel = LoadedLabel
	}
	c.focus = false
	return ctl
}

// LastError returns the failure behind the most recent error message, or
// nil once a later load or send succeeds.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// RuntimeStats returns the engine's throughput text, or "" when unloaded
func (c *Controller) RuntimeStats() string {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng == nil {
		return ""
	}
	return eng.RuntimeStatsText()
}

// Debug exposes the engine handle and load state for diagnostics
func (c *Controller) Debug() DebugInfo {
	c.mu.Lock()
	info := DebugInfo{Engine: c.engine, Loaded: c.state == Loaded}
	c.mu.Unlock()
	info.RuntimeStats = c.RuntimeStats()
	return info
}

// Close releases the engine handle
func (c *Controller) Close() error {
	c.Cancel()

	c.mu.Lock()
	eng := c.engine
	c.engine = nil
	c.mu.Unlock()

	if eng == nil {
		return nil
	}
	return eng.Close()
}

func (c *Controller) changed() {
	if c.notify == nil {
		return
	}
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
