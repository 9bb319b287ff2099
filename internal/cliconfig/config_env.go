package cliconfig

import "os"

// ApplyEnvConfig applies LIFELINE_* environment variables to cfg.
// They override file config but are overridden by flags (checked via changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", os.Getenv("LIFELINE_STATE_DIR"), &cfg.StateDir)
	s.setString("audit-dir", os.Getenv("LIFELINE_AUDIT_DIR"), &cfg.AuditDir)
	s.setString("spool-dir", os.Getenv("LIFELINE_SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("work-dir", os.Getenv("LIFELINE_WORK_DIR"), &cfg.WorkDir)
	s.setString("tags-file", os.Getenv("LIFELINE_TAGS_FILE"), &cfg.TagsFile)
	s.setString("boot-id-file", os.Getenv("LIFELINE_BOOT_ID_FILE"), &cfg.BootIDPath)
	s.setString("coordinator-url", os.Getenv("LIFELINE_COORDINATOR_URL"), &cfg.CoordinatorURL)
	s.setString("auth-key", os.Getenv("LIFELINE_AUTH_KEY"), &cfg.AuthKey)
	s.setString("instance-id", os.Getenv("LIFELINE_INSTANCE_ID"), &cfg.InstanceID)
	s.setString("auto-launch-tag", os.Getenv("LIFELINE_AUTO_LAUNCH_TAG"), &cfg.AutoLaunchTag)
	s.setString("login-keys-dir", os.Getenv("LIFELINE_LOGIN_KEYS_DIR"), &cfg.LoginKeysDir)
	s.setString("repos-dir", os.Getenv("LIFELINE_REPOS_DIR"), &cfg.ReposDir)
	s.setString("log-level", os.Getenv("LIFELINE_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("timeout", os.Getenv("LIFELINE_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-delay", os.Getenv("LIFELINE_RETRY_DELAY"), &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-delay", os.Getenv("LIFELINE_SHUTDOWN_DELAY"), &cfg.ShutdownDelay); err != nil {
		return err
	}
	if err := s.setDuration("suicide-delay", os.Getenv("LIFELINE_SUICIDE_DELAY"), &cfg.SuicideDelay); err != nil {
		return err
	}
	if err := s.setDuration("inputs-poll", os.Getenv("LIFELINE_INPUTS_POLL_INTERVAL"), &cfg.InputsPollInterval); err != nil {
		return err
	}
	if err := s.setDuration("waiting-audit-interval", os.Getenv("LIFELINE_WAITING_AUDIT_INTERVAL"), &cfg.WaitingAuditInterval); err != nil {
		return err
	}
	if err := s.setDuration("script-timeout", os.Getenv("LIFELINE_SCRIPT_TIMEOUT"), &cfg.ScriptTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("retry-attempts", os.Getenv("LIFELINE_RETRY_ATTEMPTS"), &cfg.RetryAttempts); err != nil {
		return err
	}
	if err := s.setInt64FromString("audit-high-watermark", os.Getenv("LIFELINE_AUDIT_HIGH_WATERMARK"), &cfg.AuditHighWatermark); err != nil {
		return err
	}
	if err := s.setInt64FromString("audit-low-watermark", os.Getenv("LIFELINE_AUDIT_LOW_WATERMARK"), &cfg.AuditLowWatermark); err != nil {
		return err
	}

	s.setBoolFromString("manages-volumes", os.Getenv("LIFELINE_MANAGES_VOLUMES"), &cfg.ManagesVolumes)
	s.setBoolFromString("dry-run", os.Getenv("LIFELINE_DRY_RUN"), &cfg.DryRun)

	return nil
}
