package render

import (
	"strings"

	"github.com/charmbracelet/glamour/styles"
)

// Markdown style names accepted in configuration
const (
	ThemeDark       = "dark"
	ThemeLight      = "light"
	ThemeTokyoNight = "tokyonight"
	ThemeDracula    = "dracula"
	ThemePink       = "pink"
	ThemeNoTTY      = "notty"
	ThemeASCII      = "ascii"
)

// styleAliases maps config names to glamour's standard style names
var styleAliases = map[string]string{
	ThemeTokyoNight: "tokyo-night",
}

// standardStyle returns glamour's name for a built-in style, or "" when
// style should be treated as a path to a JSON theme file.
func standardStyle(style string) string {
	name := strings.ToLower(strings.TrimSpace(style))
	if alias, ok := styleAliases[name]; ok {
		name = alias
	}
	if _, ok := styles.DefaultStyles[name]; ok {
		return name
	}
	return ""
}

// IsBuiltinStyle reports whether style names one of glamour's styles
func IsBuiltinStyle(style string) bool {
	return standardStyle(style) != ""
}

// ThemeInfo contains information about a theme for display purposes.
type ThemeInfo struct {
	Name        string
	Description string
}

// AvailableThemes returns the markdown styles offered by the config menu
func AvailableThemes() []ThemeInfo {
	return []ThemeInfo{
		{Name: ThemeDark, Description: "Dark theme (default)"},
		{Name: ThemeTokyoNight, Description: "Tokyo Night color scheme"},
		{Name: ThemeDracula, Description: "Dracula color scheme"},
		{Name: ThemeLight, Description: "Light theme for bright terminals"},
		{Name: ThemePink, Description: "Pink accents"},
		{Name: ThemeNoTTY, Description: "Plain text (no styling)"},
		{Name: ThemeASCII, Description: "ASCII-only output"},
	}
}

// ThemeNames returns just the theme names for selection.
func ThemeNames() []string {
	themes := AvailableThemes()
	names := make([]string, len(themes))
	for i, t := range themes {
		names[i] = t.Name
	}
	return names
}
