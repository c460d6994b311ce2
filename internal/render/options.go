// Package render turns model replies into styled terminal output.
package render

// minWidth keeps glamour from wrapping every word on tiny terminals
const minWidth = 20

// Options configures the markdown renderer behavior.
type Options struct {
	Width int
	// Style is a glamour style name or a path to a JSON theme
	Style            string
	EnableEmoji      bool
	PreserveNewLines bool
	TableWrap        bool
	InlineTableLinks bool
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Width:            80,
		Style:            ThemeDark,
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
	}
}

// WithWidth returns Options with the specified width.
func (o Options) WithWidth(width int) Options {
	if width < minWidth {
		width = minWidth
	}
	o.Width = width
	return o
}

// WithStyle returns Options with the specified style.
func (o Options) WithStyle(style string) Options {
	o.Style = style
	return o
}
