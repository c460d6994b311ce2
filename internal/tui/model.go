package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/diogo/localchat/internal/chat"
	"github.com/diogo/localchat/internal/models"
	"github.com/diogo/localchat/internal/render"
	"github.com/diogo/localchat/internal/transcript"
)

// Animation tick message
type animationTickMsg time.Time

// Message types for the TUI
type (
	// controllerMsg means the controller changed state
	controllerMsg struct{}
	// actionDoneMsg is returned when a blocking controller call finishes
	actionDoneMsg struct{}
	// noticeClearMsg clears the transient notice with the given id
	noticeClearMsg struct{ id int }
)

// noticeTimeout is how long transient notices stay on screen
const noticeTimeout = 3 * time.Second

// Options configures the chat surface
type Options struct {
	Render render.Options
	// AutoCopy copies every new reply to the clipboard
	AutoCopy bool
	// CopyFunc replaces the system clipboard, mainly for tests
	CopyFunc func(string) error
}

// Model represents the TUI state
type Model struct {
	ctl    *chat.Controller
	notify chan struct{}
	ctx    context.Context
	opts   Options

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	progress progress.Model

	// State
	controls       chat.Controls
	version        uint64
	ready          bool
	animationFrame int
	notice         string
	noticeID       int
	lastCopied     string

	// Dimensions
	width  int
	height int
}

// NewChatModel creates the chat surface around ctl. notify must be the
// channel passed to ctl with chat.WithNotify.
func NewChatModel(ctx context.Context, ctl *chat.Controller, notify chan struct{}, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Load the model with Ctrl+L or /load, then type your message..."
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Blur()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	p := progress.New(progress.WithGradient(string(colorPrimary), string(colorAccent)))

	if opts.CopyFunc == nil {
		opts.CopyFunc = clipboard.WriteAll
	}
	if opts.Render.Width == 0 {
		opts.Render = render.DefaultOptions()
	}

	m := Model{
		ctl:      ctl,
		notify:   notify,
		ctx:      ctx,
		opts:     opts,
		textarea: ta,
		spinner:  s,
		progress: p,
		controls: ctl.Controls(),
	}
	if m.acceptsInput() {
		m.textarea.Focus()
	}
	return m
}

// Init runs the capability probe and starts listening for controller updates
func (m Model) Init() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return tea.Batch(
		textarea.Blink,
		m.waitForUpdate(),
		func() tea.Msg {
			ctl.Initialize(ctx)
			return actionDoneMsg{}
		},
	)
}

// waitForUpdate blocks until the controller signals a change
func (m Model) waitForUpdate() tea.Cmd {
	ch := m.notify
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return controllerMsg{}
	}
}

// animationTick returns a command that sends animation tick messages
func animationTick() tea.Cmd {
	return tea.Tick(time.Millisecond*80, func(t time.Time) tea.Msg {
		return animationTickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.ctl.Cancel()
			return m, tea.Quit

		case "esc":
			if m.ctl.Cancel() {
				next := m.setNotice("Cancelling...")
				return m, next
			}
			return m, tea.Quit

		case "ctrl+l":
			return m, m.loadModel()

		case "ctrl+k":
			m.ctl.ClearChat()
			return m.sync()

		case "ctrl+y":
			next := m.copyLastReply()
			return m, next

		case "enter":
			return m.submit()
		}

	case controllerMsg:
		cmds = append(cmds, m.waitForUpdate())
		var syncCmd tea.Cmd
		m, syncCmd = m.syncModel()
		cmds = append(cmds, syncCmd)

	case actionDoneMsg:
		return m.sync()

	case noticeClearMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}

	case progress.FrameMsg:
		pm, pcmd := m.progress.Update(msg)
		if p, ok := pm.(progress.Model); ok {
			m.progress = p
		}
		cmds = append(cmds, pcmd)

	case spinner.TickMsg:
		if m.busy() {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case animationTickMsg:
		if m.controls.Sending {
			m.animationFrame++
			cmds = append(cmds, animationTick())
		}
	}

	// Only pass KeyMsg to textarea to prevent escape sequence leaks
	if m.acceptsInput() {
		if _, ok := msg.(tea.KeyMsg); ok {
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) busy() bool {
	return m.controls.Sending || m.controls.OverlayVisible
}

// acceptsInput reports whether keys reach the textarea. Until a model is
// loaded only commands can be submitted from it.
func (m Model) acceptsInput() bool {
	return m.controls.InputEnabled || (!m.controls.Loaded && !m.busy())
}

// sync is syncModel for call sites returning straight from Update
func (m Model) sync() (tea.Model, tea.Cmd) {
	return m.syncModel()
}

// syncModel pulls a Controls snapshot and applies it to the widgets
func (m Model) syncModel() (Model, tea.Cmd) {
	var cmds []tea.Cmd
	prev := m.controls
	m.controls = m.ctl.Controls()

	switch {
	case !m.acceptsInput():
		m.textarea.Blur()
	case m.controls.FocusInput || !m.textarea.Focused():
		cmds = append(cmds, m.textarea.Focus())
	}

	if m.controls.OverlayVisible {
		cmds = append(cmds, m.progress.SetPercent(float64(m.controls.OverlayPercent)/100))
		if !prev.OverlayVisible {
			cmds = append(cmds, m.spinner.Tick)
		}
	}

	if m.controls.Sending && !prev.Sending {
		m.animationFrame = 0
		cmds = append(cmds, animationTick(), m.spinner.Tick)
	}

	if v := m.ctl.Transcript().Version(); v != m.version {
		m.version = v
		m.refreshViewport()
		if cmd := m.autoCopy(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// submit handles enter: slash commands first, then a chat message
func (m Model) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") || input == "exit" || input == "quit" {
		m.textarea.Reset()
		return m.runCommand(input)
	}

	if !m.controls.SendEnabled {
		if !m.controls.Loaded {
			next := m.setNotice("Load the model first (Ctrl+L)")
			return m, next
		}
		return m, nil
	}

	m.textarea.Reset()
	m.controls.InputEnabled = false
	m.controls.SendEnabled = false
	m.textarea.Blur()
	return m, m.sendMessage(input)
}

// runCommand executes a slash command
func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit", "exit", "quit":
		m.ctl.Cancel()
		return m, tea.Quit
	case "/load":
		return m, m.loadModel()
	case "/clear":
		m.ctl.ClearChat()
		return m.sync()
	case "/stats":
		stats := m.ctl.RuntimeStats()
		if stats == "" {
			next := m.setNotice("No runtime stats: model not loaded")
			return m, next
		}
		next := m.setNotice(stats)
		return m, next
	case "/copy":
		next := m.copyLastReply()
		return m, next
	case "/export":
		next := m.export(arg)
		return m, next
	case "/help":
		next := m.setNotice("/load  /clear  /stats  /copy  /export <file.md|file.json>  /exit")
		return m, next
	default:
		next := m.setNotice(fmt.Sprintf("Unknown command %s (try /help)", name))
		return m, next
	}
}

// loadModel creates a command that loads the model off the UI loop
func (m Model) loadModel() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		ctl.LoadModel(ctx)
		return actionDoneMsg{}
	}
}

// sendMessage creates a command to send a message to the runtime
func (m Model) sendMessage(prompt string) tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		ctl.SendMessage(ctx, prompt)
		return actionDoneMsg{}
	}
}

// copyLastReply copies the most recent assistant reply
func (m *Model) copyLastReply() tea.Cmd {
	last, ok := m.ctl.Transcript().Last(models.RoleAssistant)
	if !ok || last.Content == models.PlaceholderThinking {
		return m.setNotice("Nothing to copy yet")
	}
	if err := m.opts.CopyFunc(last.Content); err != nil {
		return m.setNotice(fmt.Sprintf("Copy failed: %v", err))
	}
	m.lastCopied = last.ID
	return m.setNotice("Reply copied to clipboard")
}

// autoCopy copies a reply that has not been copied before
func (m *Model) autoCopy() tea.Cmd {
	if !m.opts.AutoCopy {
		return nil
	}
	last, ok := m.ctl.Transcript().Last(models.RoleAssistant)
	if !ok || last.ID == m.lastCopied || last.Content == models.PlaceholderThinking {
		return nil
	}
	return m.copyLastReply()
}

// export writes the transcript to path
func (m *Model) export(path string) tea.Cmd {
	if path == "" {
		return m.setNotice("Usage: /export <file.md|file.json>")
	}
	opts := transcript.DefaultExportOptions()
	opts.Model = m.ctl.Model().ID
	opts.Format = transcript.FormatForPath(path)
	if err := m.ctl.Transcript().WriteFile(path, opts); err != nil {
		return m.setNotice(fmt.Sprintf("Export failed: %v", err))
	}
	return m.setNotice("Transcript exported to " + path)
}

// setNotice shows a transient notice and schedules its removal
func (m *Model) setNotice(text string) tea.Cmd {
	m.noticeID++
	m.notice = text
	id := m.noticeID
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return noticeClearMsg{id: id}
	})
}

// layout sizes the components for the current window
func (m *Model) layout() {
	headerHeight := 4 // Header panel with border
	inputHeight := 6  // Input panel with border
	statusHeight := 1 // Status bar
	padding := 2      // Extra spacing

	vpHeight := m.height - headerHeight - inputHeight - statusHeight - padding
	if vpHeight < 5 {
		vpHeight = 5
	}

	contentWidth := m.width - 4

	if !m.ready {
		m.viewport = viewport.New(contentWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(contentWidth - 4)
	m.progress.Width = contentWidth - 12
	m.refreshViewport()
}

// refreshViewport re-renders the transcript and scrolls to the newest message
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

// renderMessages styles every transcript message by role
func (m Model) renderMessages() string {
	var content strings.Builder
	bubbleWidth := m.viewport.Width - 6
	renderOpts := m.opts.Render.WithWidth(bubbleWidth - 4)

	for i, msg := range m.ctl.Transcript().Messages() {
		if i > 0 {
			content.WriteString("\n")
		}

		switch msg.Role {
		case models.RoleUser:
			label := userLabelStyle.Render("⬤ " + msg.Role.Label())
			bubble := userBubbleStyle.Width(bubbleWidth).Render(msg.Content)
			content.WriteString(label + "\n" + bubble)

		case models.RoleAssistant:
			label := assistantLabelStyle.Render("✦ " + msg.Role.Label())
			var body string
			if msg.Content == models.PlaceholderThinking {
				body = placeholderStyle.Render(m.spinner.View() + " " + msg.Content)
			} else {
				body = render.Reply(msg.Content, renderOpts)
			}
			bubble := assistantBubbleStyle.Width(bubbleWidth).Render(body)
			content.WriteString(label + "\n" + bubble)

		case models.RoleError:
			content.WriteString(errorMessageStyle.Width(bubbleWidth).Render("⚠ " + msg.Content))

		default:
			content.WriteString(systemStyle.Width(bubbleWidth).Render("• " + msg.Content))
		}
		content.WriteString("\n")
	}

	return content.String()
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	var sections []string
	contentWidth := m.width - 4

	// Header
	status := statusUnloadedStyle.Render(m.controls.StatusText)
	if m.controls.Loaded {
		status = statusLoadedStyle.Render(m.controls.StatusText)
	}
	headerContent := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("✦ localchat"),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(m.ctl.Model().ID),
		hintStyle.Render("  •  "),
		status,
	)
	sections = append(sections, headerStyle.Width(contentWidth).Render(headerContent))

	// Messages
	messagesContent := m.viewport.View()
	if m.ctl.Transcript().Len() == 0 {
		messagesContent = m.renderWelcome()
	}
	sections = append(sections, messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messagesContent))

	// Input, replaced by the progress overlay while loading
	switch {
	case m.controls.OverlayVisible:
		sections = append(sections, m.renderOverlay(contentWidth))
	case m.controls.Sending:
		sections = append(sections, inputPanelStyle.Width(contentWidth).Render(m.renderLoadingAnimation()))
	default:
		inputContent := lipgloss.JoinVertical(
			lipgloss.Left,
			inputLabelStyle.Render("You"),
			m.textarea.View(),
		)
		sections = append(sections, inputPanelStyle.Width(contentWidth).Render(inputContent))
	}

	sections = append(sections, m.renderStatusBar(contentWidth))

	if m.notice != "" {
		sections = append(sections, noticeStyle.Render(m.notice))
	}
	if err := m.ctl.LastError(); err != nil {
		if hint := errorHint(err); hint != "" {
			sections = append(sections, noticeStyle.Render("💡 "+hint))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderOverlay renders the load progress panel
func (m Model) renderOverlay(width int) string {
	title := loadingStyle.Render(m.spinner.View() + " Loading " + m.ctl.Model().DisplayName)
	bar := lipgloss.JoinHorizontal(lipgloss.Center,
		m.progress.View(),
		"  ",
		configValueStyle.Render(fmt.Sprintf("%d%%", m.controls.OverlayPercent)),
	)
	text := overlayTextStyle.Render(m.controls.OverlayText)
	return overlayStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", bar, text))
}

// renderWelcome renders the welcome screen when no messages exist
func (m Model) renderWelcome() string {
	width := m.viewport.Width - 4
	height := m.viewport.Height

	icon := welcomeIconStyle.Width(width).Render("✦")
	title := welcomeTitleStyle.Width(width).Render("Welcome to localchat")
	subtitle := welcomeStyle.Width(width).Render(fmt.Sprintf("Press Ctrl+L to load %s, then start typing", m.ctl.Model().DisplayName))

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		"",
		icon,
		"",
		title,
		"",
		subtitle,
		"",
	)

	topPadding := (height - lipgloss.Height(content)) / 2
	if topPadding < 0 {
		topPadding = 0
	}

	return strings.Repeat("\n", topPadding) + content
}

// renderLoadingAnimation renders a colorful animated waiting indicator
func (m Model) renderLoadingAnimation() string {
	chars := []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	barChars := []string{"█", "█", "█", "█", "█", "█", "█", "█", "▓", "▒", "░"}

	frame := m.animationFrame

	spinIdx := frame % len(chars)
	spinColor := gradientColors[frame%len(gradientColors)]
	spin := lipgloss.NewStyle().Foreground(spinColor).Bold(true).Render(chars[spinIdx])

	barWidth := 20
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		colorIdx := (i + frame) % len(gradientColors)
		charIdx := (i + frame/2) % len(barChars)
		bar.WriteString(lipgloss.NewStyle().Foreground(gradientColors[colorIdx]).Render(barChars[charIdx]))
	}

	text := lipgloss.NewStyle().Foreground(colorText).Render(" " + m.ctl.Model().DisplayName + " is thinking ")
	hint := hintStyle.Render(" (Esc to cancel)")

	return fmt.Sprintf("%s %s %s%s", spin, bar.String(), text, hint)
}

// renderStatusBar renders the bottom status bar with shortcuts
func (m Model) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"^L", m.controls.LoadLabel},
		{"^K", "Clear"},
		{"^Y", "Copy"},
		{"Esc", "Cancel/Quit"},
	}

	var items []string
	for _, s := range shortcuts {
		keyStyle := statusKeyStyle
		if s.key == "^L" && !m.controls.LoadEnabled {
			keyStyle = statusDescStyle
		}
		items = append(items, lipgloss.JoinHorizontal(
			lipgloss.Center,
			keyStyle.Render(s.key),
			statusDescStyle.Render(" "+s.desc),
		))
	}

	bar := lipgloss.JoinHorizontal(lipgloss.Center, strings.Join(items, "  │  "))
	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(bar)
}

// RunChat starts the chat TUI. It closes the controller's engine on exit.
func RunChat(ctx context.Context, ctl *chat.Controller, notify chan struct{}, opts Options) error {
	defer ctl.Close()

	p := tea.NewProgram(
		NewChatModel(ctx, ctl, notify, opts),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
