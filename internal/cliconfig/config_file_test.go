package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				StateDir:           "/file/state",
				CoordinatorURL:     "http://coord",
				InstanceID:         "i-file",
				ShutdownDelay:      "2m",
				RetryAttempts:      9,
				AuditHighWatermark: 1000,
				ManagesVolumes:     &trueVal,
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				StateDir:           "/file/state",
				CoordinatorURL:     "http://coord",
				InstanceID:         "i-file",
				ShutdownDelay:      2 * time.Minute,
				RetryAttempts:      9,
				AuditHighWatermark: 1000,
				ManagesVolumes:     true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				StateDir:   "/file/state",
				InstanceID: "i-file",
			},
			changed: map[string]bool{"state-dir": true},
			initial: Config{
				StateDir:   "/flag/state",
				InstanceID: "i-flag",
			},
			expected: Config{
				StateDir:   "/flag/state", // unchanged because flag was set
				InstanceID: "i-file",
			},
		},
		{
			name:       "zero values leave config untouched",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			initial:    Config{RetryAttempts: 5, LogLevel: "debug"},
			expected:   Config{RetryAttempts: 5, LogLevel: "debug"},
		},
		{
			name:       "invalid duration",
			fileConfig: FileConfig{SuicideDelay: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.expected {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	tomlContent := `
coordinator_url = "https://coord.example"
instance_id = "i-42"
shutdown_delay = "90s"
retry_attempts = 3
audit_low_watermark = 2048
manages_volumes = true
`
	if err := os.WriteFile(configPath, []byte(tomlContent), 0o644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.CoordinatorURL != "https://coord.example" {
		t.Errorf("CoordinatorURL = %v", fc.CoordinatorURL)
	}
	if fc.InstanceID != "i-42" {
		t.Errorf("InstanceID = %v", fc.InstanceID)
	}
	if fc.ShutdownDelay != "90s" {
		t.Errorf("ShutdownDelay = %v", fc.ShutdownDelay)
	}
	if fc.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %v", fc.RetryAttempts)
	}
	if fc.AuditLowWatermark != 2048 {
		t.Errorf("AuditLowWatermark = %v", fc.AuditLowWatermark)
	}
	if fc.ManagesVolumes == nil || !*fc.ManagesVolumes {
		t.Errorf("ManagesVolumes = %v, want true", fc.ManagesVolumes)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	if _, err := LoadFileConfig("/nonexistent/path/config.toml"); err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.toml")
	if err := os.WriteFile(configPath, []byte("state_dir = \"/x\"\nthis is not valid toml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(configPath); err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if path != "" && !strings.Contains(path, ".lifeline") {
		t.Errorf("DefaultConfigPath() = %v, should contain .lifeline", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existing := filepath.Join(tmpDir, "exists.txt")
	if err := os.WriteFile(existing, []byte("test"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !FileExists(existing) {
		t.Error("FileExists() = false, want true for existing file")
	}
	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
