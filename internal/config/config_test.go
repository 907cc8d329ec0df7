package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Vision.MatchThreshold != 0.4 {
		t.Errorf("expected match threshold 0.4, got %v", cfg.Vision.MatchThreshold)
	}
	if cfg.Tracking.HistorySize != 5 {
		t.Errorf("expected history size 5, got %d", cfg.Tracking.HistorySize)
	}
	if cfg.Tracking.ConfidenceThreshold != 0.65 {
		t.Errorf("expected confidence threshold 0.65, got %v", cfg.Tracking.ConfidenceThreshold)
	}
	if cfg.Tracking.MemoryDuration != 3*time.Second {
		t.Errorf("expected memory duration 3s, got %v", cfg.Tracking.MemoryDuration)
	}
	if cfg.Tracking.RecognitionInterval != 3 {
		t.Errorf("expected recognition interval 3, got %d", cfg.Tracking.RecognitionInterval)
	}
	if cfg.Vision.RecognitionPadding != 0.2 {
		t.Errorf("expected padding 0.2, got %v", cfg.Vision.RecognitionPadding)
	}
}

func TestLoad_YAMLDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
tracking:
  memory_duration: 1500ms
  history_size: 7
vision:
  retry_backoff: 250ms
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracking.MemoryDuration != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", cfg.Tracking.MemoryDuration)
	}
	if cfg.Tracking.HistorySize != 7 {
		t.Errorf("expected history 7, got %d", cfg.Tracking.HistorySize)
	}
	if cfg.Vision.RetryBackoff != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Vision.RetryBackoff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ATTEND_SERVER_PORT", "7070")
	t.Setenv("ATTEND_MATCH_THRESHOLD", "0.55")
	t.Setenv("ATTEND_LEDGER_PATH", "/tmp/ledger.csv")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Vision.MatchThreshold != 0.55 {
		t.Errorf("expected env threshold 0.55, got %v", cfg.Vision.MatchThreshold)
	}
	if cfg.Attendance.LedgerPath != "/tmp/ledger.csv" {
		t.Errorf("expected env ledger path, got %q", cfg.Attendance.LedgerPath)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Attendance.LedgerPath == "" {
		t.Error("expected default ledger path")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{name: "defaults", yaml: "{}", wantErr: false},
		{name: "inverted face ratios", yaml: "vision:\n  enroll_min_face_ratio: 0.8\n  enroll_max_face_ratio: 0.5\n", wantErr: true},
		{name: "confidence above one", yaml: "tracking:\n  confidence_threshold: 1.5\n", wantErr: true},
		{name: "match threshold out of range", yaml: "vision:\n  match_threshold: 2\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "attend", User: "u", Password: "p"}
	want := "postgres://u:p@db:5432/attend?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	d.URL = "postgres://override"
	if got := d.DSN(); got != "postgres://override" {
		t.Errorf("DSN() with URL = %q", got)
	}
}
