package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/diogo/localchat/internal/chat"
	"github.com/diogo/localchat/internal/models"
	"github.com/diogo/localchat/internal/render"
	"github.com/diogo/localchat/internal/tui"
)

// Gradient colors for animation
var gradientColors = []lipgloss.Color{
	lipgloss.Color("#ff6b6b"), // Red
	lipgloss.Color("#feca57"), // Yellow
	lipgloss.Color("#48dbfb"), // Cyan
	lipgloss.Color("#ff9ff3"), // Pink
	lipgloss.Color("#54a0ff"), // Blue
	lipgloss.Color("#5f27cd"), // Purple
	lipgloss.Color("#00d2d3"), // Teal
	lipgloss.Color("#1dd1a1"), // Green
}

var (
	colorText     = lipgloss.Color("#c0caf5")
	colorTextDim  = lipgloss.Color("#565f89")
	colorTextMute = lipgloss.Color("#3b4261")
	colorSuccess  = lipgloss.Color("#9ece6a")
	colorPrimary  = lipgloss.Color("#7aa2f7")
	colorError    = lipgloss.Color("#f7768e")
)

// Styles matching the chat TUI
var (
	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true).
				MarginBottom(0)

	assistantBubbleStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Foreground(colorText).
				Padding(0, 1).
				MarginTop(1).
				MarginBottom(1)

	statsStyle = lipgloss.NewStyle().
			Foreground(colorTextDim).
			Italic(true)
)

// spinner handles the animated loading indicator
type spinner struct {
	out     io.Writer
	message string
	stop    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	frame   int
	stopped bool // Flag to prevent double-close
}

// newSpinner creates a new animated spinner
func newSpinner(out io.Writer, message string) *spinner {
	return &spinner{
		out:     out,
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// start begins the animation
func (s *spinner) start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		// Hide cursor
		fmt.Fprint(s.out, "\033[?25l")

		for {
			select {
			case <-s.stop:
				// Clear line and show cursor
				fmt.Fprint(s.out, "\r\033[K\033[?25h")
				return
			case <-ticker.C:
				s.mu.Lock()
				s.render()
				s.frame++
				s.mu.Unlock()
			}
		}
	}()
}

// setMessage replaces the text shown next to the animation
func (s *spinner) setMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// render draws the current animation frame
func (s *spinner) render() {
	// Spinner characters
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	barChars := []string{"█", "█", "█", "█", "█", "█", "▓", "▒", "░"}

	// Build spinner character with color
	spinIdx := s.frame % len(chars)
	spinColor := gradientColors[s.frame%len(gradientColors)]
	spinnerChar := lipgloss.NewStyle().Foreground(spinColor).Bold(true).Render(chars[spinIdx])

	// Build animated bar
	barWidth := 16
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		colorIdx := (i + s.frame) % len(gradientColors)
		charIdx := (i + s.frame/2) % len(barChars)
		style := lipgloss.NewStyle().Foreground(gradientColors[colorIdx])
		bar.WriteString(style.Render(barChars[charIdx]))
	}

	// Build animated dots
	var dots strings.Builder
	numDots := (s.frame / 3) % 4
	for i := 0; i < 3; i++ {
		if i < numDots {
			dotColor := gradientColors[(s.frame+i)%len(gradientColors)]
			dots.WriteString(lipgloss.NewStyle().Foreground(dotColor).Render("●"))
		} else {
			dots.WriteString(lipgloss.NewStyle().Foreground(colorTextMute).Render("○"))
		}
	}

	msg := lipgloss.NewStyle().Foreground(colorText).Render(s.message)

	fmt.Fprintf(s.out, "\r\033[K%s %s %s %s", spinnerChar, bar.String(), msg, dots.String())
}

// stopOnce safely closes the stop channel only once
func (s *spinner) stopOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		close(s.stop)
		s.stopped = true
	}
}

// stopWithSuccess stops the spinner and shows success message
func (s *spinner) stopWithSuccess(message string) {
	s.stopOnce()
	<-s.done

	checkmark := lipgloss.NewStyle().Foreground(colorSuccess).Bold(true).Render("✓")
	msg := lipgloss.NewStyle().Foreground(colorSuccess).Render(message)
	fmt.Fprintf(s.out, "%s %s\n", checkmark, msg)
}

// stopWithError stops the spinner and shows error
func (s *spinner) stopWithError() {
	s.stopOnce()
	<-s.done
}

// loadProgress formats the overlay state for the spinner line
func loadProgress(spec models.ModelSpec, c chat.Controls) string {
	msg := fmt.Sprintf("Loading %s %d%%", spec.DisplayName, c.OverlayPercent)
	if c.OverlayText != "" {
		msg += " · " + c.OverlayText
	}
	return msg
}

// followProgress mirrors controller updates into the spinner until done closes
func followProgress(ctl *chat.Controller, notify <-chan struct{}, spin *spinner, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-notify:
			if spin != nil {
				spin.setMessage(loadProgress(ctl.Model(), ctl.Controls()))
			}
		}
	}
}

// lastOutcome returns the reply of the last exchange or the error that
// replaced it
func lastOutcome(ctl *chat.Controller) (string, error) {
	msgs := ctl.Transcript().Messages()
	if len(msgs) == 0 {
		return "", fmt.Errorf("no reply")
	}
	last := msgs[len(msgs)-1]
	switch last.Role {
	case models.RoleAssistant:
		return last.Content, nil
	case models.RoleError:
		if err := ctl.LastError(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%s", strings.TrimPrefix(last.Content, "Error: "))
	default:
		return "", fmt.Errorf("no reply")
	}
}

// runQuery loads the model, sends a single prompt and prints the reply.
// If rawOutput is true, only the raw reply text is printed without decoration.
func runQuery(ctx context.Context, cmd *cobra.Command, deps *Dependencies, prompt string, rawOutput bool) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog := deps.openLog(cfg)
	defer closeLog()
	logger.Info("one-shot query", "model", cfg.Model, "backend", cfg.Backend, "chars", len(prompt))

	notify := make(chan struct{}, 1)
	ctl, err := deps.newController(cmd, cfg, logger, notify)
	if err != nil {
		return err
	}
	defer ctl.Close()

	spec := ctl.Model()
	outputFile := flagString(cmd, "output")

	// Load with a progress-aware spinner
	var spin *spinner
	if !rawOutput {
		spin = newSpinner(deps.Stderr, fmt.Sprintf("Loading %s", spec.DisplayName))
		spin.start()
	}

	done := make(chan struct{})
	go followProgress(ctl, notify, spin, done)
	ctl.LoadModel(ctx)
	close(done)

	if !ctl.Loaded() {
		loadErr := ctl.LastError()
		if loadErr == nil {
			loadErr = fmt.Errorf("model did not load")
		}
		if !rawOutput {
			spin.stopWithError()
			fmt.Fprintln(deps.Stderr, tui.FormatError(loadErr, "Failed to load model"))
		}
		return fmt.Errorf("failed to load model: %w", loadErr)
	}
	if !rawOutput {
		spin.stopWithSuccess(fmt.Sprintf(chat.StatusLoadedFmt, spec.DisplayName))
	}

	// Generate
	if !rawOutput {
		spin = newSpinner(deps.Stderr, "Generating response")
		spin.start()
	}

	startTime := time.Now()
	ctl.SendMessage(ctx, prompt)
	text, err := lastOutcome(ctl)
	requestDuration := time.Since(startTime)

	if err != nil {
		if !rawOutput {
			spin.stopWithError()
			fmt.Fprintln(deps.Stderr, tui.FormatError(err, "Generation failed"))
		}
		return fmt.Errorf("generation failed: %w", err)
	}
	if !rawOutput {
		spin.stopWithSuccess("Done")
	}
	logger.Info("one-shot reply", "elapsed", requestDuration, "chars", len(text))

	// Raw output mode: output only the raw text
	if rawOutput {
		if outputFile != "" {
			if err := os.WriteFile(outputFile, []byte(text), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			return nil
		}
		fmt.Fprint(deps.Stdout, text)
		return nil
	}

	fmt.Fprintln(deps.Stderr)

	if cfg.CopyToClipboard {
		if err := clipboard.WriteAll(text); err != nil {
			warnMsg := lipgloss.NewStyle().Foreground(colorError).Render(
				fmt.Sprintf("⚠ Failed to copy to clipboard: %v", err),
			)
			fmt.Fprintln(deps.Stderr, warnMsg)
		} else {
			clipMsg := lipgloss.NewStyle().Foreground(colorSuccess).Render("✓ Copied to clipboard")
			fmt.Fprintln(deps.Stderr, clipMsg)
		}
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		successMsg := lipgloss.NewStyle().Foreground(colorSuccess).Render(
			fmt.Sprintf("✓ Response saved to %s", outputFile),
		)
		fmt.Fprintln(deps.Stderr, successMsg)
		return nil
	}

	// Get terminal width for proper formatting
	termWidth := getTerminalWidth()
	bubbleWidth := termWidth - 4
	if bubbleWidth < 40 {
		bubbleWidth = 40
	}
	if bubbleWidth > 120 {
		bubbleWidth = 120
	}
	contentWidth := bubbleWidth - 4

	fmt.Fprintln(deps.Stdout, assistantLabelStyle.Render("✦ "+spec.DisplayName))

	rendered := render.Reply(text, render.OptionsFromConfigWithWidth(cfg, contentWidth))
	fmt.Fprintln(deps.Stdout, assistantBubbleStyle.Width(bubbleWidth).Render(rendered))

	if stats := ctl.RuntimeStats(); stats != "" {
		fmt.Fprintln(deps.Stderr, statsStyle.Render(stats))
	}

	return nil
}

// getTerminalWidth returns the terminal width or a default value
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80 // default width
	}
	return width
}

// isTTY reports whether w is a terminal
func isTTY(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
