package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StateDir   string `toml:"state_dir"`
	AuditDir   string `toml:"audit_dir"`
	SpoolDir   string `toml:"spool_dir"`
	WorkDir    string `toml:"work_dir"`
	TagsFile   string `toml:"tags_file"`
	BootIDPath string `toml:"boot_id_file"`

	CoordinatorURL string `toml:"coordinator_url"`
	AuthKey        string `toml:"auth_key"`
	InstanceID     string `toml:"instance_id"`

	HTTPTimeout          string `toml:"http_timeout"`
	RetryDelay           string `toml:"retry_delay"`
	RetryAttempts        int    `toml:"retry_attempts"`
	ShutdownDelay        string `toml:"shutdown_delay"`
	SuicideDelay         string `toml:"suicide_delay"`
	InputsPollInterval   string `toml:"inputs_poll_interval"`
	WaitingAuditInterval string `toml:"waiting_audit_interval"`
	ScriptTimeout        string `toml:"script_timeout"`

	ManagesVolumes *bool  `toml:"manages_volumes"`
	AutoLaunchTag  string `toml:"auto_launch_tag"`
	LoginKeysDir   string `toml:"login_keys_dir"`
	ReposDir       string `toml:"repos_dir"`

	AuditHighWatermark int64 `toml:"audit_high_watermark"`
	AuditLowWatermark  int64 `toml:"audit_low_watermark"`

	LogLevel string `toml:"log_level"`
	DryRun   *bool  `toml:"dry_run"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.lifeline/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".lifeline", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("audit-dir", fc.AuditDir, &cfg.AuditDir)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("work-dir", fc.WorkDir, &cfg.WorkDir)
	s.setString("tags-file", fc.TagsFile, &cfg.TagsFile)
	s.setString("boot-id-file", fc.BootIDPath, &cfg.BootIDPath)
	s.setString("coordinator-url", fc.CoordinatorURL, &cfg.CoordinatorURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("instance-id", fc.InstanceID, &cfg.InstanceID)
	s.setString("auto-launch-tag", fc.AutoLaunchTag, &cfg.AutoLaunchTag)
	s.setString("login-keys-dir", fc.LoginKeysDir, &cfg.LoginKeysDir)
	s.setString("repos-dir", fc.ReposDir, &cfg.ReposDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
		{"retry-delay", fc.RetryDelay, &cfg.RetryDelay},
		{"shutdown-delay", fc.ShutdownDelay, &cfg.ShutdownDelay},
		{"suicide-delay", fc.SuicideDelay, &cfg.SuicideDelay},
		{"inputs-poll", fc.InputsPollInterval, &cfg.InputsPollInterval},
		{"waiting-audit-interval", fc.WaitingAuditInterval, &cfg.WaitingAuditInterval},
		{"script-timeout", fc.ScriptTimeout, &cfg.ScriptTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("retry-attempts", fc.RetryAttempts, &cfg.RetryAttempts)
	s.setInt64("audit-high-watermark", fc.AuditHighWatermark, &cfg.AuditHighWatermark)
	s.setInt64("audit-low-watermark", fc.AuditLowWatermark, &cfg.AuditLowWatermark)

	s.setBool("manages-volumes", fc.ManagesVolumes, &cfg.ManagesVolumes)
	s.setBool("dry-run", fc.DryRun, &cfg.DryRun)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
