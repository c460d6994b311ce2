package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/diogo/localchat/internal/models"
)

func fixedStore() *Store {
	s := NewStore()
	s.now = func() time.Time { return time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC) }
	s.Append(models.RoleSystem, "Phi-3 Mini loaded successfully!")
	s.Append(models.RoleUser, "Hello, how are you?")
	s.Append(models.RoleAssistant, "I'm doing well, thank you!")
	return s
}

func TestExportMarkdown(t *testing.T) {
	s := fixedStore()
	opts := DefaultExportOptions()
	opts.Model = "phi3:mini"

	md := s.ExportMarkdown(opts)

	for _, want := range []string{
		"# Chat transcript",
		"**Model:** phi3:mini",
		"**Exported:** 2025-03-01 10:30:00",
		"**Messages:** 3",
		"## System (10:30:00)",
		"## You (10:30:00)",
		"## Assistant (10:30:00)",
		"Hello, how are you?",
		"I'm doing well",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown should contain %q\n%s", want, md)
		}
	}
}

func TestExportMarkdown_WithoutNotices(t *testing.T) {
	s := fixedStore()
	s.Append(models.RoleError, "Error: boom")

	opts := DefaultExportOptions()
	opts.IncludeNotices = false
	md := s.ExportMarkdown(opts)

	if strings.Contains(md, "loaded successfully") || strings.Contains(md, "boom") {
		t.Error("markdown should NOT contain notices when disabled")
	}
	if !strings.Contains(md, "**Messages:** 2") {
		t.Error("message count should only include user and assistant messages")
	}
}

func TestExportJSON(t *testing.T) {
	s := fixedStore()
	opts := DefaultExportOptions()
	opts.Model = "phi3:mini"

	data, err := s.ExportJSON(opts)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	var decoded struct {
		Model    string           `json:"model"`
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Model != "phi3:mini" {
		t.Errorf("expected model phi3:mini, got %s", decoded.Model)
	}
	if len(decoded.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(decoded.Messages))
	}
	if decoded.Messages[2].Role != models.RoleAssistant {
		t.Errorf("expected assistant role, got %s", decoded.Messages[2].Role)
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want ExportFormat
	}{
		{"chat.json", ExportFormatJSON},
		{"chat.JSON", ExportFormatJSON},
		{"chat.md", ExportFormatMarkdown},
		{"chat", ExportFormatMarkdown},
	}
	for _, tt := range tests {
		if got := FormatForPath(tt.path); got != tt.want {
			t.Errorf("FormatForPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestWriteFile(t *testing.T) {
	s := fixedStore()
	dir := t.TempDir()

	mdPath := filepath.Join(dir, "nested", "chat.md")
	if err := s.WriteFile(mdPath, DefaultExportOptions()); err != nil {
		t.Fatalf("WriteFile markdown failed: %v", err)
	}
	data, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Chat transcript") {
		t.Error("markdown file has unexpected content")
	}

	jsonPath := filepath.Join(dir, "chat.json")
	opts := DefaultExportOptions()
	opts.Format = FormatForPath(jsonPath)
	if err := s.WriteFile(jsonPath, opts); err != nil {
		t.Fatalf("WriteFile json failed: %v", err)
	}
	data, _ = os.ReadFile(jsonPath)
	if !json.Valid(data) {
		t.Error("json export is not valid JSON")
	}

	opts.Format = "yaml"
	if err := s.WriteFile(filepath.Join(dir, "chat.yaml"), opts); err == nil {
		t.Error("expected error for unknown format")
	}
}
