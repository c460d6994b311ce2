package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/diogo/localchat/internal/config"
	"github.com/diogo/localchat/internal/models"
	"github.com/diogo/localchat/internal/render"
)

// feedbackClearMsg is sent to clear feedback messages
type feedbackClearMsg struct{}

// setting is one row of the config menu. Toggles flip a bool; choices
// open a list of options.
type setting struct {
	label   string
	options func() []string
	get     func(c config.Config) string
	set     func(c *config.Config, v string)
	toggle  func(c *config.Config) bool
}

func modelIDs() []string {
	var ids []string
	for _, spec := range models.AllModels() {
		ids = append(ids, spec.ID)
	}
	return ids
}

func defaultSettings() []setting {
	return []setting{
		{
			label:   "Model",
			options: modelIDs,
			get:     func(c config.Config) string { return c.Model },
			set:     func(c *config.Config, v string) { c.Model = v },
		},
		{
			label:   "Backend",
			options: config.AvailableBackends,
			get:     func(c config.Config) string { return c.Backend },
			set:     func(c *config.Config, v string) { c.Backend = v },
		},
		{
			label:   "Log Level",
			options: config.AvailableLogLevels,
			get:     func(c config.Config) string { return c.LogLevel },
			set:     func(c *config.Config, v string) { c.LogLevel = v },
		},
		{
			label: "Copy to Clipboard",
			toggle: func(c *config.Config) bool {
				c.CopyToClipboard = !c.CopyToClipboard
				return c.CopyToClipboard
			},
			get: func(c config.Config) string { return fmt.Sprint(c.CopyToClipboard) },
		},
		{
			label:   "Markdown Theme",
			options: render.ThemeNames,
			get: func(c config.Config) string {
				if c.Markdown.Style == "" {
					return render.ThemeDark
				}
				return c.Markdown.Style
			},
			set: func(c *config.Config, v string) { c.Markdown.Style = v },
		},
		{
			label:   "TUI Theme",
			options: render.TUIThemeNames,
			get: func(c config.Config) string {
				if c.TUITheme == "" {
					return render.TokyoNightTheme.Name
				}
				return c.TUITheme
			},
			set: func(c *config.Config, v string) {
				c.TUITheme = v
				render.SetTUITheme(v)
				UpdateTheme()
			},
		},
	}
}

// ConfigModel represents the config TUI state
type ConfigModel struct {
	config    config.Config
	configDir string
	settings  []setting
	save      func(config.Config) error

	// Navigation. selecting is -1 on the main menu, otherwise the index
	// of the setting whose options are shown.
	cursor       int
	selecting    int
	optionCursor int

	// Feedback
	feedback        string
	feedbackTimeout time.Duration

	// Dimensions
	width  int
	height int
	ready  bool
}

// NewConfigModel creates a new config TUI model
func NewConfigModel() ConfigModel {
	cfg, err := config.LoadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	configDir, _ := config.GetConfigDir()

	if cfg.TUITheme != "" && render.SetTUITheme(cfg.TUITheme) {
		UpdateTheme()
	}

	return newConfigModel(cfg, configDir, config.SaveConfig)
}

func newConfigModel(cfg config.Config, configDir string, save func(config.Config) error) ConfigModel {
	return ConfigModel{
		config:          cfg,
		configDir:       configDir,
		settings:        defaultSettings(),
		save:            save,
		selecting:       -1,
		feedbackTimeout: 2 * time.Second,
	}
}

// Init initializes the model
func (m ConfigModel) Init() tea.Cmd {
	return nil
}

// clearFeedback returns a command that clears the feedback message after a delay
func clearFeedback(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return feedbackClearMsg{}
	})
}

// exitIndex is the cursor position of the Exit row
func (m ConfigModel) exitIndex() int {
	return len(m.settings)
}

// Update handles messages and updates the model
func (m ConfigModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case feedbackClearMsg:
		m.feedback = ""

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "esc":
			if m.selecting >= 0 {
				m.selecting = -1
			} else {
				return m, tea.Quit
			}

		case "up", "k":
			m.move(-1)

		case "down", "j":
			m.move(1)

		case "enter", " ":
			return m.handleSelect()
		}
	}

	return m, nil
}

// move shifts the active cursor with wrap-around
func (m *ConfigModel) move(delta int) {
	if m.selecting >= 0 {
		n := len(m.settings[m.selecting].options())
		m.optionCursor = (m.optionCursor + delta + n) % n
		return
	}
	n := len(m.settings) + 1
	m.cursor = (m.cursor + delta + n) % n
}

// handleSelect handles menu item selection
func (m ConfigModel) handleSelect() (tea.Model, tea.Cmd) {
	if m.selecting >= 0 {
		s := m.settings[m.selecting]
		value := s.options()[m.optionCursor]
		s.set(&m.config, value)
		m.selecting = -1
		return m.persist(fmt.Sprintf("%s set to %s", s.label, value))
	}

	if m.cursor == m.exitIndex() {
		return m, tea.Quit
	}

	s := m.settings[m.cursor]
	if s.toggle != nil {
		state := "disabled"
		if s.toggle(&m.config) {
			state = "enabled"
		}
		return m.persist(fmt.Sprintf("%s %s", s.label, state))
	}

	m.selecting = m.cursor
	m.optionCursor = 0
	current := s.get(m.config)
	for i, opt := range s.options() {
		if opt == current {
			m.optionCursor = i
			break
		}
	}
	return m, nil
}

// persist saves the config and reports the outcome
func (m ConfigModel) persist(success string) (tea.Model, tea.Cmd) {
	if err := m.save(m.config); err != nil {
		m.feedback = fmt.Sprintf("Error: %v", err)
	} else {
		m.feedback = success
	}
	return m, clearFeedback(m.feedbackTimeout)
}

// View renders the TUI
func (m ConfigModel) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	var sections []string
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	header := configHeaderStyle.Width(contentWidth).Render(configTitleStyle.Render("✦ Configuration"))
	sections = append(sections, header)

	paths := lipgloss.JoinVertical(lipgloss.Left,
		configSectionTitleStyle.Render("📁 Paths"),
		fmt.Sprintf("   Config:  %s", configPathStyle.Render(m.configDir+"/config.json")),
		fmt.Sprintf("   Runtime: %s", configPathStyle.Render(m.config.ResolvedBaseURL())),
	)
	sections = append(sections, configPanelStyle.Width(contentWidth).Render(paths))

	var body string
	if m.selecting >= 0 {
		body = m.renderOptions()
	} else {
		body = m.renderMainMenu()
	}
	sections = append(sections, configPanelStyle.Width(contentWidth).Render(body))

	switch {
	case strings.HasPrefix(m.feedback, "Error"):
		sections = append(sections, configStatusErrorStyle.Render("✗ "+m.feedback))
	case m.feedback != "":
		sections = append(sections, configFeedbackStyle.Render("✓ "+m.feedback))
	}

	sections = append(sections, m.renderStatusBar(contentWidth))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m ConfigModel) cursorFor(selected bool) (string, lipgloss.Style) {
	if selected {
		return configCursorStyle.Render("▸ "), configMenuSelectedStyle
	}
	return "  ", configMenuItemStyle
}

// renderMainMenu renders the main settings menu
func (m ConfigModel) renderMainMenu() string {
	const labelWidth = 20

	items := []string{configSectionTitleStyle.Render("⚙ Settings"), ""}
	for i, s := range m.settings {
		cursor, style := m.cursorFor(m.cursor == i)

		var value string
		if s.toggle != nil {
			value = m.renderBoolValue(s.get(m.config) == "true")
		} else {
			value = configValueStyle.Render(s.get(m.config))
		}

		pad := labelWidth - len(s.label)
		if pad < 1 {
			pad = 1
		}
		items = append(items, cursor+style.Render(s.label)+strings.Repeat(" ", pad)+value)
	}

	items = append(items, "")
	cursor, style := m.cursorFor(m.cursor == m.exitIndex())
	items = append(items, cursor+style.Render("Exit"))

	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

// renderOptions renders the option list of the setting being edited
func (m ConfigModel) renderOptions() string {
	s := m.settings[m.selecting]
	current := s.get(m.config)

	items := []string{configSectionTitleStyle.Render("Select " + s.label), ""}
	for i, opt := range s.options() {
		cursor, style := m.cursorFor(m.optionCursor == i)
		marker := ""
		if opt == current {
			marker = configStatusOkStyle.Render(" (current)")
		}
		items = append(items, cursor+style.Render(opt)+marker)
	}

	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

// renderBoolValue renders a boolean value with appropriate styling
func (m ConfigModel) renderBoolValue(value bool) string {
	if value {
		return configEnabledStyle.Render("enabled")
	}
	return configDisabledStyle.Render("disabled")
}

// renderStatusBar renders the bottom status bar
func (m ConfigModel) renderStatusBar(width int) string {
	escDesc := "Exit"
	if m.selecting >= 0 {
		escDesc = "Back"
	}
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"↑↓", "Navigate"},
		{"Enter", "Select"},
		{"Esc", escDesc},
	}

	var items []string
	for _, s := range shortcuts {
		items = append(items, lipgloss.JoinHorizontal(
			lipgloss.Center,
			statusKeyStyle.Render(s.key),
			statusDescStyle.Render(" "+s.desc),
		))
	}

	bar := lipgloss.JoinHorizontal(lipgloss.Center, strings.Join(items, "  │  "))
	return configStatusBarStyle.Width(width).Align(lipgloss.Center).Render(bar)
}

// RunConfig starts the config TUI
func RunConfig() error {
	p := tea.NewProgram(
		NewConfigModel(),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
