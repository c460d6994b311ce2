package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/diogo/localchat/internal/models"
)

// NewProbeCmd reports the detected acceleration
func NewProbeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Detect GPU acceleration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Probe == nil {
				return fmt.Errorf("no capability probe configured")
			}
			capability := deps.Probe.Detect(cmd.Context())

			if capability.Accelerated {
				ok := lipgloss.NewStyle().Foreground(colorSuccess).Render("✓ " + capability.String())
				fmt.Fprintln(deps.Stdout, ok)
				return nil
			}
			warn := lipgloss.NewStyle().Foreground(colorError).Render("⚠ " + models.NoticeNoAcceleration)
			fmt.Fprintln(deps.Stdout, warn)
			return nil
		},
	}
}
