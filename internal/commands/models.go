package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/diogo/localchat/internal/models"
)

// NewModelsCmd lists the model presets
func NewModelsCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model presets",
		Long: `List the model presets localchat knows about. Any identifier the
runtime serves can be used with --model; presets only add a display name
and license.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current := models.DefaultModel.ID
			if cfg, err := resolveConfig(cmd); err == nil {
				current = cfg.Model
			}
			printModels(deps.Stdout, current)
			return nil
		},
	}
}

func printModels(w io.Writer, current string) {
	idStyle := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Width(16)
	nameStyle := lipgloss.NewStyle().Foreground(colorText).Width(16)
	dimStyle := lipgloss.NewStyle().Foreground(colorTextDim)
	markStyle := lipgloss.NewStyle().Foreground(colorSuccess)

	found := false
	for _, m := range models.AllModels() {
		mark := "  "
		if m.ID == current {
			mark = markStyle.Render("● ")
			found = true
		}
		fmt.Fprintf(w, "%s%s%s%s\n", mark, idStyle.Render(m.ID), nameStyle.Render(m.DisplayName), dimStyle.Render(m.License))
	}

	if !found {
		fmt.Fprintf(w, "%s%s%s\n", markStyle.Render("● "), idStyle.Render(current), dimStyle.Render("(custom)"))
	}
}
