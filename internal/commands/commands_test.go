package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/diogo/localchat/internal/chat"
	"github.com/diogo/localchat/internal/config"
	"github.com/diogo/localchat/internal/engine"
	apierrors "github.com/diogo/localchat/internal/errors"
	"github.com/diogo/localchat/internal/gpu"
	"github.com/diogo/localchat/internal/logging"
	"github.com/diogo/localchat/internal/models"
	"github.com/diogo/localchat/internal/render"
	"github.com/diogo/localchat/internal/tui"
)

type fakeTUI struct {
	chatCalls   int
	configCalls int
	ctl         *chat.Controller
	opts        tui.Options
	err         error
}

func (f *fakeTUI) RunChat(ctx context.Context, ctl *chat.Controller, notify chan struct{}, opts tui.Options) error {
	f.chatCalls++
	f.ctl = ctl
	f.opts = opts
	return f.err
}

func (f *fakeTUI) RunConfig() error {
	f.configCalls++
	return f.err
}

type testEnv struct {
	deps    *Dependencies
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	tui     *fakeTUI
	loader  *engine.MockLoader
	backend string
	baseURL string
}

func newTestEnv(t *testing.T, loader *engine.MockLoader) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LOCALCHAT_BASE_URL", "")
	t.Setenv("GLAMOUR_STYLE", render.ThemeNoTTY)

	if loader == nil {
		loader = &engine.MockLoader{Engine: &engine.MockEngine{ReplyText: "Hi there"}}
	}

	env := &testEnv{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		tui:    &fakeTUI{},
		loader: loader,
	}
	newLoader := func(backend, baseURL string, opts ...engine.Option) (engine.Loader, error) {
		env.backend = backend
		env.baseURL = baseURL
		return loader, nil
	}
	openLog := func(config.Config) (*slog.Logger, func() error, error) {
		return logging.Discard(), func() error { return nil }, nil
	}
	env.deps = &Dependencies{
		NewLoader: newLoader,
		Probe:     gpu.MockProbe{Accelerated: true, Backend: "CUDA", Device: "RTX 4090"},
		TUI:       env.tui,
		OpenLog:   openLog,
		Stdin:     strings.NewReader(""),
		Stdout:    env.stdout,
		Stderr:    env.stderr,
	}
	return env
}

func (e *testEnv) execute(args ...string) error {
	cmd := NewRootCmd(e.deps)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func (e *testEnv) lastPrompt(t *testing.T) string {
	t.Helper()
	reqs := e.loader.Engine.Requests()
	if len(reqs) == 0 {
		t.Fatal("no completion requests")
	}
	msgs := reqs[len(reqs)-1].Messages
	if len(msgs) != 2 {
		t.Fatalf("request has %d messages, want 2", len(msgs))
	}
	return msgs[1].Content
}

func TestRootCommand_Metadata(t *testing.T) {
	env := newTestEnv(t, nil)
	cmd := NewRootCmd(env.deps)

	if cmd.Use != "localchat [prompt]" {
		t.Errorf("Use = %q", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("descriptions should not be empty")
	}

	for _, name := range []string{"chat", "config", "models", "probe"} {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}

	for _, name := range []string{"model", "backend", "base-url", "log-level"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing global flag --%s", name)
		}
	}
	if f := cmd.PersistentFlags().ShorthandLookup("m"); f == nil || f.Name != "model" {
		t.Error("-m should be the shorthand for --model")
	}
	for _, name := range []string{"output", "file", "raw", "version"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
}

func TestRootCmd_Version(t *testing.T) {
	for _, arg := range []string{"-v", "--version"} {
		t.Run(arg, func(t *testing.T) {
			env := newTestEnv(t, nil)
			if err := env.execute(arg); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !strings.Contains(env.stdout.String(), "localchat "+Version) {
				t.Errorf("stdout = %q", env.stdout.String())
			}
			if env.loader.Calls() != 0 {
				t.Error("version should not load a model")
			}
		})
	}
}

func TestRootCmd_NoInputShowsHelp(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(env.stdout.String(), "Examples:") {
		t.Errorf("expected help, got %q", env.stdout.String())
	}
	if env.loader.Calls() != 0 {
		t.Error("help should not load a model")
	}
}

func TestRootCmd_PositionalArg(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.execute("What is Go?"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if env.stdout.String() != "Hi there" {
		t.Errorf("stdout = %q, want raw reply", env.stdout.String())
	}
	if got := env.lastPrompt(t); got != "What is Go?" {
		t.Errorf("prompt = %q", got)
	}
	if env.loader.LastModel() != models.DefaultModel.ID {
		t.Errorf("model = %q", env.loader.LastModel())
	}
	if env.backend != models.BackendOllama || env.baseURL != models.DefaultOllamaURL {
		t.Errorf("runtime = %s %s", env.backend, env.baseURL)
	}
	if !env.loader.Engine.Closed() {
		t.Error("engine should be closed after a one-shot query")
	}

	req := env.loader.Engine.Requests()[0]
	if req.Messages[0].Content != models.DefaultSystemPrompt {
		t.Errorf("system prompt = %q", req.Messages[0].Content)
	}
	if req.Temperature != models.DefaultTemperature || req.MaxTokens != models.DefaultMaxTokens {
		t.Errorf("params = %v/%d", req.Temperature, req.MaxTokens)
	}
}

func TestRootCmd_StdinInput(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Stdin = strings.NewReader("from stdin\n")

	if err := env.execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := env.lastPrompt(t); got != "from stdin" {
		t.Errorf("prompt = %q", got)
	}
}

func TestRootCmd_FileInput(t *testing.T) {
	env := newTestEnv(t, nil)
	path := filepath.Join(t.TempDir(), "prompt.md")
	if err := os.WriteFile(path, []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := env.execute("-f", path); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := env.lastPrompt(t); got != "from file" {
		t.Errorf("prompt = %q", got)
	}

	if err := env.execute("-f", filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestRootCmd_OutputFile(t *testing.T) {
	env := newTestEnv(t, nil)
	out := filepath.Join(t.TempDir(), "reply.md")

	if err := env.execute("Hello", "-o", out); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "Hi there" {
		t.Errorf("file = %q", data)
	}
	if env.stdout.Len() != 0 {
		t.Errorf("stdout should be empty, got %q", env.stdout.String())
	}
}

func TestRootCmd_FlagOverrides(t *testing.T) {
	env := newTestEnv(t, nil)
	t.Setenv("LOCALCHAT_BASE_URL", "http://env:1234")

	err := env.execute("Hello", "-m", "llama3.2:3b", "--backend", "OpenAI", "--base-url", "http://flag:8080/", "--log-level", "debug")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if env.loader.LastModel() != "llama3.2:3b" {
		t.Errorf("model = %q", env.loader.LastModel())
	}
	if env.backend != models.BackendOpenAI {
		t.Errorf("backend = %q", env.backend)
	}
	if env.baseURL != "http://flag:8080" {
		t.Errorf("baseURL = %q, flag should beat the environment", env.baseURL)
	}
	if got := env.loader.LastConfig().LogLevel; got != "DEBUG" {
		t.Errorf("log level = %q", got)
	}
}

func TestRootCmd_EnvBaseURL(t *testing.T) {
	env := newTestEnv(t, nil)
	t.Setenv("LOCALCHAT_BASE_URL", "http://env:1234/")

	if err := env.execute("Hello"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if env.baseURL != "http://env:1234" {
		t.Errorf("baseURL = %q", env.baseURL)
	}
}

func TestRootCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		loader  *engine.MockLoader
		args    []string
		wantErr string
		check   func(error) bool
	}{
		{
			name:    "invalid backend",
			args:    []string{"Hello", "--backend", "grpc"},
			wantErr: "invalid configuration",
		},
		{
			name:    "empty prompt",
			args:    []string{"   "},
			wantErr: "prompt cannot be empty",
		},
		{
			name:    "load failure",
			loader:  &engine.MockLoader{LoadErr: apierrors.NewNetworkError("pull", errors.New("connection refused"))},
			args:    []string{"Hello"},
			wantErr: "failed to load model",
			check:   apierrors.IsNetworkError,
		},
		{
			name:    "model not found",
			loader:  &engine.MockLoader{LoadErr: apierrors.NewModelNotFoundError("nope")},
			args:    []string{"Hello", "-m", "nope"},
			wantErr: "failed to load model",
			check:   apierrors.IsModelNotFound,
		},
		{
			name:    "generation failure",
			loader:  &engine.MockLoader{Engine: &engine.MockEngine{CompleteErr: apierrors.NewAPIError(500, "/api/chat", "boom")}},
			args:    []string{"Hello"},
			wantErr: "generation failed",
			check:   func(err error) bool { return apierrors.GetHTTPStatus(err) == 500 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.loader)
			err := env.execute(tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(err) {
				t.Errorf("error %v lost its type", err)
			}
		})
	}
}

func TestRunQuery_Decorated(t *testing.T) {
	loader := &engine.MockLoader{
		Reports: []engine.ProgressReport{engine.Fraction(0.5, "pulling")},
		Engine: &engine.MockEngine{
			ReplyText: "Hi there",
			Stats:     "prefill: 10.0 tokens/sec, decode: 5.0 tokens/sec",
		},
	}
	env := newTestEnv(t, loader)
	cmd := NewRootCmd(env.deps)

	if err := runQuery(context.Background(), cmd, env.deps, "Hello", false); err != nil {
		t.Fatalf("runQuery() error = %v", err)
	}

	stderr := env.stderr.String()
	for _, want := range []string{"Phi-3 Mini Loaded", "Done", "prefill: 10.0 tokens/sec"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q", want)
		}
	}
	stdout := env.stdout.String()
	for _, want := range []string{"✦ Phi-3 Mini", "Hi", "there"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q", want)
		}
	}
}

func TestRunQuery_DecoratedLoadError(t *testing.T) {
	loader := &engine.MockLoader{LoadErr: apierrors.NewNetworkError("health check", errors.New("connection refused"))}
	env := newTestEnv(t, loader)

	err := runQuery(context.Background(), NewRootCmd(env.deps), env.deps, "Hello", false)
	if err == nil {
		t.Fatal("expected an error")
	}
	stderr := env.stderr.String()
	for _, want := range []string{"✗ Failed to load model:", "Is the runtime running?"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q, got %q", want, stderr)
		}
	}
}

func TestRunQuery_DecoratedGenerationError(t *testing.T) {
	loader := &engine.MockLoader{Engine: &engine.MockEngine{
		CompleteErr: apierrors.NewAPIError(502, "/api/chat", "bad gateway"),
	}}
	env := newTestEnv(t, loader)

	err := runQuery(context.Background(), NewRootCmd(env.deps), env.deps, "Hello", false)
	if err == nil {
		t.Fatal("expected an error")
	}
	stderr := env.stderr.String()
	for _, want := range []string{"✗ Generation failed:", "HTTP Status: 502", "Endpoint: /api/chat", "Hint:"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q, got %q", want, stderr)
		}
	}
}

func TestChatCommand(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.execute("chat", "-m", "qwen2.5:3b"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if env.tui.chatCalls != 1 {
		t.Fatalf("RunChat called %d times", env.tui.chatCalls)
	}
	if env.tui.ctl.Model().ID != "qwen2.5:3b" {
		t.Errorf("controller model = %q", env.tui.ctl.Model().ID)
	}
	if env.tui.ctl.Loaded() {
		t.Error("chat should start unloaded")
	}
	if env.tui.opts.Render.Style != render.ThemeNoTTY {
		t.Errorf("render style = %q", env.tui.opts.Render.Style)
	}
	if env.tui.opts.AutoCopy {
		t.Error("auto copy should follow the config default")
	}
}

func TestChatCommand_RejectsArgs(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.execute("chat", "extra"); err == nil {
		t.Error("chat should reject positional arguments")
	}
}

func TestConfigCommand(t *testing.T) {
	env := newTestEnv(t, nil)
	cmd := NewConfigCmd(env.deps)

	if cmd.Use != "config" {
		t.Errorf("Use = %q", cmd.Use)
	}
	if err := env.execute("config"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if env.tui.configCalls != 1 {
		t.Errorf("RunConfig called %d times", env.tui.configCalls)
	}
}

func TestModelsCommand(t *testing.T) {
	t.Run("presets", func(t *testing.T) {
		env := newTestEnv(t, nil)
		if err := env.execute("models"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		out := env.stdout.String()
		for _, m := range models.AllModels() {
			if !strings.Contains(out, m.ID) || !strings.Contains(out, m.DisplayName) {
				t.Errorf("output missing %s", m.ID)
			}
		}
		if strings.Count(out, "●") != 1 {
			t.Error("exactly one model should be marked current")
		}
	})

	t.Run("custom model", func(t *testing.T) {
		env := newTestEnv(t, nil)
		if err := env.execute("models", "-m", "mistral:7b"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(env.stdout.String(), "mistral:7b") || !strings.Contains(env.stdout.String(), "(custom)") {
			t.Errorf("output = %q", env.stdout.String())
		}
	})
}

func TestProbeCommand(t *testing.T) {
	t.Run("accelerated", func(t *testing.T) {
		env := newTestEnv(t, nil)
		if err := env.execute("probe"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(env.stdout.String(), "CUDA: RTX 4090") {
			t.Errorf("output = %q", env.stdout.String())
		}
	})

	t.Run("cpu", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.deps.Probe = gpu.MockProbe{Backend: "CPU"}
		if err := env.execute("probe"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(env.stdout.String(), models.NoticeNoAcceleration) {
			t.Errorf("output = %q", env.stdout.String())
		}
	})

	t.Run("no probe", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.deps.Probe = nil
		if err := env.execute("probe"); err == nil {
			t.Error("expected an error without a probe")
		}
	})
}

func TestOpenLog(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.OpenLog = func(config.Config) (*slog.Logger, func() error, error) {
		return nil, nil, errors.New("read-only filesystem")
	}

	logger, closeFn := env.deps.openLog(config.DefaultConfig())
	if logger == nil || closeFn == nil {
		t.Fatal("openLog should fall back to a discard logger")
	}
	if err := closeFn(); err != nil {
		t.Errorf("close error = %v", err)
	}
	if !strings.Contains(env.stderr.String(), "logging disabled") {
		t.Errorf("stderr = %q", env.stderr.String())
	}
}

func TestNewDependencies(t *testing.T) {
	deps := NewDependencies()
	if deps.NewLoader == nil || deps.Probe == nil || deps.TUI == nil || deps.OpenLog == nil {
		t.Error("default dependencies should be fully populated")
	}
	if deps.Stdout != os.Stdout || deps.Stderr != os.Stderr || deps.Stdin != os.Stdin {
		t.Error("default dependencies should use the process streams")
	}
}
