package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/lifeline/internal/adapters/audit"
	"github.com/bft-labs/lifeline/internal/adapters/engine"
	"github.com/bft-labs/lifeline/internal/adapters/fs"
	"github.com/bft-labs/lifeline/internal/adapters/host"
	httpAdapter "github.com/bft-labs/lifeline/internal/adapters/http"
	logAdapter "github.com/bft-labs/lifeline/internal/adapters/log"
	"github.com/bft-labs/lifeline/internal/app"
	"github.com/bft-labs/lifeline/internal/cliconfig"
	"github.com/bft-labs/lifeline/internal/clock"
	"github.com/bft-labs/lifeline/internal/ports"
)

const helpDescription = `
On-host lifecycle orchestrator for managed instances.

lifeline boots the instance against its coordinator, runs configuration
bundles one at a time, and decommissions the host when asked: run the
decommission bundle, then shut down, with a fallback timer so the host
always goes away. Interrupted decommissions resume at the shutdown.

Control the running agent with "lifeline request".
`

var exampleUsage = strings.TrimSpace(`
  lifeline --coordinator-url https://coord.internal --instance-id i-0abc
  lifeline --config /etc/lifeline/config.toml --log-level debug
  lifeline request shutdown --level stop --immediately
  lifeline status
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:          "lifeline",
		Short:        "On-host lifecycle orchestrator",
		Long:         strings.TrimSpace(helpDescription),
		Example:      exampleUsage,
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logCfg := cfg
			if len(logCfg.AuthKey) > 0 {
				logCfg.AuthKey = "*****"
			}
			log.Info().Interface("config", logCfg).Msg("configuration")

			return runAgent(cfg)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.lifeline/config.toml)")
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory holding the lifecycle record")
	f.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "control request spool directory")

	rf := root.Flags()
	rf.StringVar(&cfg.AuditDir, "audit-dir", cfg.AuditDir, "audit directory")
	rf.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "working directory of bundle scripts")
	rf.StringVar(&cfg.TagsFile, "tags-file", cfg.TagsFile, "TOML file with the startup tags")
	rf.StringVar(&cfg.BootIDPath, "boot-id-file", cfg.BootIDPath, "kernel boot id file")
	if err := rf.MarkHidden("boot-id-file"); err != nil {
		log.Info().Err(err).Msg("failed to hide boot-id-file flag")
	}

	rf.StringVar(&cfg.CoordinatorURL, "coordinator-url", cfg.CoordinatorURL, "base URL of the coordinator")
	rf.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for the coordinator")
	rf.StringVar(&cfg.InstanceID, "instance-id", cfg.InstanceID, "instance id (defaults to the hostname)")

	rf.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "per-attempt coordinator request timeout")
	rf.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "delay between coordinator retries")
	rf.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "attempts for bounded coordinator requests")
	rf.DurationVar(&cfg.ShutdownDelay, "shutdown-delay", cfg.ShutdownDelay, "fallback shutdown delay after decommission was scheduled")
	rf.DurationVar(&cfg.SuicideDelay, "suicide-delay", cfg.SuicideDelay, "deadline for an auto-launched first boot to obtain its boot bundle")
	rf.DurationVar(&cfg.InputsPollInterval, "inputs-poll", cfg.InputsPollInterval, "poll interval while boot bundle inputs are missing")
	rf.DurationVar(&cfg.WaitingAuditInterval, "waiting-audit-interval", cfg.WaitingAuditInterval, "minimum interval between repeated waiting audits")
	rf.DurationVar(&cfg.ScriptTimeout, "script-timeout", cfg.ScriptTimeout, "timeout of one bundle script (0 = none)")

	rf.BoolVar(&cfg.ManagesVolumes, "manages-volumes", cfg.ManagesVolumes, "wait for attached volumes when resuming after stop")
	rf.StringVar(&cfg.AutoLaunchTag, "auto-launch-tag", cfg.AutoLaunchTag, "startup tag marking auto-launched instances")
	rf.StringVar(&cfg.LoginKeysDir, "login-keys-dir", cfg.LoginKeysDir, "directory for managed login keys")
	rf.StringVar(&cfg.ReposDir, "repos-dir", cfg.ReposDir, "directory for repository definitions")

	rf.Int64Var(&cfg.AuditHighWatermark, "audit-high-watermark", cfg.AuditHighWatermark, "audit directory size that triggers pruning (bytes)")
	rf.Int64Var(&cfg.AuditLowWatermark, "audit-low-watermark", cfg.AuditLowWatermark, "audit directory size pruning stops at (bytes)")

	rf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	rf.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "log host power actions instead of performing them")

	root.AddCommand(newRequestCmd(&cfg, &cfgPath), newStatusCmd(&cfg, &cfgPath))

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("lifeline")
		os.Exit(1)
	}
}

// resolveConfig applies the config file, then LIFELINE_* variables, leaving
// explicitly set flags alone.
func resolveConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}
	return cliconfig.ApplyEnvConfig(cfg, changed)
}

func runAgent(cfg cliconfig.Config) error {
	logger := logAdapter.NewConsole(cfg.LogLevel).With("instance_id", cfg.InstanceID)
	clk := clock.Real()

	hostname, _ := os.Hostname()
	coordinator := httpAdapter.NewCoordinator(httpAdapter.CoordinatorConfig{
		BaseURL:    cfg.CoordinatorURL,
		AuthKey:    cfg.AuthKey,
		InstanceID: cfg.InstanceID,
		Hostname:   hostname,
	}, &http.Client{Timeout: cfg.HTTPTimeout}, logger)

	var power host.PowerSwitch
	conn, err := host.Logind()
	switch {
	case err == nil:
		defer conn.Close()
		power = conn
	case cfg.DryRun:
		logger.Warn("logind unavailable", ports.Err(err))
	default:
		return err
	}

	agent := app.New(app.Config{
		InstanceID:           cfg.InstanceID,
		BootID:               fs.ReadBootID(cfg.BootIDPath),
		SpoolDir:             cfg.SpoolDir,
		ManagesVolumes:       cfg.ManagesVolumes,
		AutoLaunchTag:        cfg.AutoLaunchTag,
		RetryDelay:           cfg.RetryDelay,
		RetryAttempts:        cfg.RetryAttempts,
		RequestTimeout:       cfg.HTTPTimeout,
		ShutdownDelay:        cfg.ShutdownDelay,
		SuicideDelay:         cfg.SuicideDelay,
		InputsPollInterval:   cfg.InputsPollInterval,
		WaitingAuditInterval: cfg.WaitingAuditInterval,
	}, app.Deps{
		StateRepo:    fs.NewStateFileRepository(cfg.StateDir),
		Coordinator:  coordinator,
		Engine:       engine.NewExec(engine.Config{WorkDir: cfg.WorkDir, Timeout: cfg.ScriptTimeout}, logger),
		Audits:       audit.NewFileSink(cfg.AuditDir, logger),
		Host:         host.New(host.Config{InstanceID: cfg.InstanceID, RequestTimeout: cfg.HTTPTimeout, DryRun: cfg.DryRun}, coordinator, power, clk, logger),
		Tags:         fs.NewTagFileSource(cfg.TagsFile),
		Login:        fs.NewLoginKeysApplier(cfg.LoginKeysDir, logger),
		Repositories: fs.NewRepoFileConfigurator(cfg.ReposDir),
		Volumes:      fs.NewDeviceWaiter(clk, time.Second, 5*time.Minute, logger),
		Notifier:     host.NewNotifier(logger),
		Clock:        clk,
		Logger:       logger,
		Services: []app.Service{
			audit.NewCleaner(audit.CleanupConfig{
				HighWatermark: cfg.AuditHighWatermark,
				LowWatermark:  cfg.AuditLowWatermark,
			}, cfg.AuditDir, clk, logger),
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.Run(ctx); err != nil {
		return fmt.Errorf("run agent: %w", err)
	}
	logger.Info("agent stopped")
	return nil
}
