package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/lifeline/internal/domain"
)

// DefaultAutoLaunchTag marks instances started by an auto-scaling launch.
const DefaultAutoLaunchTag = "lifeline:auto_launched=true"

// Config holds CLI configuration for lifeline.
type Config struct {
	StateDir   string
	AuditDir   string
	SpoolDir   string
	WorkDir    string
	TagsFile   string
	BootIDPath string

	CoordinatorURL string
	AuthKey        string
	InstanceID     string

	HTTPTimeout          time.Duration
	RetryDelay           time.Duration
	RetryAttempts        int
	ShutdownDelay        time.Duration
	SuicideDelay         time.Duration
	InputsPollInterval   time.Duration
	WaitingAuditInterval time.Duration
	ScriptTimeout        time.Duration

	ManagesVolumes bool
	AutoLaunchTag  string
	LoginKeysDir   string
	ReposDir       string

	AuditHighWatermark int64
	AuditLowWatermark  int64

	LogLevel string
	DryRun   bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StateDir:             "/var/lib/lifeline",
		AuditDir:             "/var/log/lifeline/audits",
		SpoolDir:             "/run/lifeline/requests",
		WorkDir:              "/var/lib/lifeline/work",
		TagsFile:             "/etc/lifeline/tags.toml",
		BootIDPath:           "/proc/sys/kernel/random/boot_id",
		HTTPTimeout:          15 * time.Second,
		RetryDelay:           5 * time.Second,
		RetryAttempts:        5,
		ShutdownDelay:        180 * time.Second,
		SuicideDelay:         45 * time.Minute,
		InputsPollInterval:   20 * time.Second,
		WaitingAuditInterval: 5 * time.Minute,
		AutoLaunchTag:        DefaultAutoLaunchTag,
		LoginKeysDir:         "/etc/lifeline/login",
		ReposDir:             "/etc/yum.repos.d",
		AuditHighWatermark:   256 << 20, // 256MB
		AuditLowWatermark:    192 << 20,
		LogLevel:             "info",
		AuthKey:              os.Getenv("LIFELINE_AUTH_KEY"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.CoordinatorURL == "" {
		return fmt.Errorf("%w: coordinator-url is required", domain.ErrInvalidConfig)
	}
	c.CoordinatorURL = strings.TrimRight(c.CoordinatorURL, "/")

	if c.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			return fmt.Errorf("%w: instance-id is required", domain.ErrInvalidConfig)
		}
		c.InstanceID = host
	}

	if c.StateDir == "" {
		return fmt.Errorf("%w: state-dir is required", domain.ErrInvalidConfig)
	}
	if c.AuditDir == "" {
		c.AuditDir = c.StateDir + "/audits"
	}
	if c.SpoolDir == "" {
		c.SpoolDir = c.StateDir + "/requests"
	}
	if c.WorkDir == "" {
		c.WorkDir = c.StateDir + "/work"
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"timeout", c.HTTPTimeout},
		{"retry-delay", c.RetryDelay},
		{"shutdown-delay", c.ShutdownDelay},
		{"suicide-delay", c.SuicideDelay},
		{"inputs-poll", c.InputsPollInterval},
		{"waiting-audit-interval", c.WaitingAuditInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidConfig, p.name)
		}
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("%w: retry-attempts must be positive", domain.ErrInvalidConfig)
	}
	if c.AuditLowWatermark > c.AuditHighWatermark {
		return fmt.Errorf("%w: audit low watermark above high watermark", domain.ErrInvalidConfig)
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination if valid.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
