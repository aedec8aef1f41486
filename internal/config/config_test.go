package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadSearch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "search.yaml")
	content := `search:
  base_url: https://www.linkedin.com/jobs/search
  query: golang engineer
  geo_id: "103644278"
  easy_apply: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadSearch(path)
	if err != nil {
		t.Fatalf("LoadSearch: %v", err)
	}
	if sc.Query != "golang engineer" {
		t.Errorf("query = %q", sc.Query)
	}
	if sc.GeoID != "103644278" {
		t.Errorf("geo_id = %q", sc.GeoID)
	}
	if !sc.EasyApply {
		t.Error("easy_apply should be true")
	}
}

func TestLoadSearchMissingBaseURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "search.yaml")
	if err := os.WriteFile(path, []byte("search:\n  query: x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSearch(path); err == nil {
		t.Error("expected error for missing base_url")
	}
}
