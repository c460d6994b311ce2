package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/diogo/localchat/internal/chat"
	"github.com/diogo/localchat/internal/config"
	"github.com/diogo/localchat/internal/engine"
	"github.com/diogo/localchat/internal/gpu"
	"github.com/diogo/localchat/internal/logging"
	"github.com/diogo/localchat/internal/models"
	"github.com/diogo/localchat/internal/tui"
)

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	RunChat(ctx context.Context, ctl *chat.Controller, notify chan struct{}, opts tui.Options) error
	RunConfig() error
}

// LoaderFactory builds the runtime binding for a backend
type LoaderFactory func(backend, baseURL string, opts ...engine.Option) (engine.Loader, error)

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// NewLoader creates the runtime loader.
	NewLoader LoaderFactory

	// Probe detects GPU acceleration.
	Probe gpu.Probe

	// TUI is the terminal user interface.
	TUI TUIInterface

	// OpenLog returns the logger for a resolved config and its closer.
	OpenLog func(cfg config.Config) (*slog.Logger, func() error, error)

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

func (d *DefaultTUI) RunChat(ctx context.Context, ctl *chat.Controller, notify chan struct{}, opts tui.Options) error {
	return tui.RunChat(ctx, ctl, notify, opts)
}

func (d *DefaultTUI) RunConfig() error {
	return tui.RunConfig()
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		NewLoader: engine.NewLoader,
		Probe:     gpu.NewSystemProbe(),
		TUI:       &DefaultTUI{},
		OpenLog:   logging.Open,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// flagString reads a flag that may be missing from cmd's flag set
func flagString(cmd *cobra.Command, name string) string {
	if cmd == nil {
		return ""
	}
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// resolveConfig loads the user configuration and applies the global flags
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return cfg, err
	}

	if v := flagString(cmd, "model"); v != "" {
		cfg.Model = v
	}
	if v := flagString(cmd, "backend"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := flagString(cmd, "base-url"); v != "" {
		cfg.BaseURL = v
	}
	if v := flagString(cmd, "log-level"); v != "" {
		cfg.LogLevel = strings.ToUpper(v)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runtimeURL returns the runtime address. --base-url beats the
// environment, which beats the config file.
func runtimeURL(cmd *cobra.Command, cfg config.Config) string {
	if v := flagString(cmd, "base-url"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return cfg.ResolvedBaseURL()
}

// openLog opens the log file. Logging problems never stop the command.
func (d *Dependencies) openLog(cfg config.Config) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	if d.OpenLog == nil {
		return logging.Discard(), noop
	}
	logger, closeFn, err := d.OpenLog(cfg)
	if err != nil {
		fmt.Fprintf(d.Stderr, "Warning: logging disabled: %v\n", err)
		return logging.Discard(), noop
	}
	return logger, closeFn
}

// newController wires a chat controller for the resolved config
func (d *Dependencies) newController(cmd *cobra.Command, cfg config.Config, logger *slog.Logger, notify chan<- struct{}) (*chat.Controller, error) {
	baseURL := runtimeURL(cmd, cfg)
	loader, err := d.NewLoader(cfg.Backend, baseURL,
		engine.WithLogger(logger),
		engine.WithTimeout(time.Duration(cfg.RequestTimeout)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime client: %w", err)
	}
	logger.Debug("runtime configured", "backend", cfg.Backend, "base_url", baseURL)

	opts := []chat.Option{
		chat.WithModel(models.ModelFromID(cfg.Model)),
		chat.WithSystemPrompt(cfg.SystemPrompt),
		chat.WithParams(chat.Params{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}),
		chat.WithLogger(logger),
		chat.WithLogLevel(cfg.LogLevel),
	}
	if d.Probe != nil {
		opts = append(opts, chat.WithProbe(d.Probe))
	}
	if notify != nil {
		opts = append(opts, chat.WithNotify(notify))
	}
	return chat.NewController(loader, opts...), nil
}
