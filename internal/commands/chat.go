package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/diogo/localchat/internal/render"
	"github.com/diogo/localchat/internal/tui"
)

// NewChatCmd creates the interactive chat command
func NewChatCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session with a local model.

Press Ctrl+L to load the model, Enter to send, Ctrl+K to clear the chat,
Ctrl+Y to copy the last reply and Esc to cancel a request.
Type /help for slash commands, or /exit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd, deps)
		},
	}
}

func runChat(ctx context.Context, cmd *cobra.Command, deps *Dependencies) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog := deps.openLog(cfg)
	defer closeLog()

	if cfg.TUITheme != "" && render.SetTUITheme(cfg.TUITheme) {
		tui.UpdateTheme()
	}

	notify := make(chan struct{}, 1)
	ctl, err := deps.newController(cmd, cfg, logger, notify)
	if err != nil {
		return err
	}

	logger.Info("starting chat", "model", cfg.Model, "backend", cfg.Backend)
	return deps.TUI.RunChat(ctx, ctl, notify, tui.Options{
		Render:   render.OptionsFromConfig(cfg),
		AutoCopy: cfg.CopyToClipboard,
	})
}
