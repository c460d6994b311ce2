package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/diogo/localchat/internal/models"
)

// ExportFormat represents the format for exporting a transcript
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
)

// ExportOptions configures how a transcript is exported
type ExportOptions struct {
	Format ExportFormat
	// Model is written into the export header
	Model string
	// IncludeNotices keeps system and error messages
	IncludeNotices bool
}

// DefaultExportOptions returns sensible defaults for export
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:         ExportFormatMarkdown,
		IncludeNotices: true,
	}
}

// FormatForPath picks JSON for .json files and Markdown otherwise
func FormatForPath(path string) ExportFormat {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ExportFormatJSON
	}
	return ExportFormatMarkdown
}

func filterMessages(messages []models.Message, opts ExportOptions) []models.Message {
	if opts.IncludeNotices {
		return messages
	}
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

// ExportMarkdown renders the transcript as a Markdown document
func (s *Store) ExportMarkdown(opts ExportOptions) string {
	messages := filterMessages(s.Messages(), opts)

	var sb strings.Builder

	sb.WriteString("# Chat transcript\n\n")
	if opts.Model != "" {
		sb.WriteString("**Model:** ")
		sb.WriteString(opts.Model)
		sb.WriteString("\n")
	}
	sb.WriteString("**Exported:** ")
	sb.WriteString(s.now().Format("2006-01-02 15:04:05"))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("**Messages:** %d", len(messages)))
	sb.WriteString("\n\n---\n\n")

	for i, msg := range messages {
		sb.WriteString("## ")
		sb.WriteString(msg.Role.Label())
		if !msg.CreatedAt.IsZero() {
			sb.WriteString(" (")
			sb.WriteString(msg.CreatedAt.Format("15:04:05"))
			sb.WriteString(")")
		}
		sb.WriteString("\n\n")

		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if i < len(messages)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

// ExportJSON serializes the transcript as indented JSON
func (s *Store) ExportJSON(opts ExportOptions) ([]byte, error) {
	type exportTranscript struct {
		Model      string           `json:"model,omitempty"`
		ExportedAt time.Time        `json:"exported_at"`
		Messages   []models.Message `json:"messages"`
	}

	return json.MarshalIndent(exportTranscript{
		Model:      opts.Model,
		ExportedAt: s.now(),
		Messages:   filterMessages(s.Messages(), opts),
	}, "", "  ")
}

// WriteFile exports the transcript to path, creating parent directories
func (s *Store) WriteFile(path string, opts ExportOptions) error {
	var data []byte
	switch opts.Format {
	case ExportFormatJSON:
		var err error
		data, err = s.ExportJSON(opts)
		if err != nil {
			return fmt.Errorf("failed to encode transcript: %w", err)
		}
	case ExportFormatMarkdown, "":
		data = []byte(s.ExportMarkdown(opts))
	default:
		return fmt.Errorf("unknown export format %q", opts.Format)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
