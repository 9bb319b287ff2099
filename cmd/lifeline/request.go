package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/bft-labs/lifeline/internal/cliconfig"
	"github.com/bft-labs/lifeline/internal/control"
	"github.com/bft-labs/lifeline/internal/domain"
)

func newRequestCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Send a control request to the running agent",
	}

	submit := func(c *cobra.Command, req control.Request) error {
		if err := resolveConfig(c, cfg, *cfgPath); err != nil {
			return err
		}
		dir := cfg.SpoolDir
		if dir == "" {
			dir = cfg.StateDir + "/requests"
		}
		id, err := control.Submit(dir, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.OutOrStdout(), id)
		return nil
	}

	var bundleFile string
	bundle := &cobra.Command{
		Use:   "bundle",
		Short: "Queue a bundle",
		RunE: func(c *cobra.Command, args []string) error {
			b, err := readBundle(bundleFile)
			if err != nil {
				return err
			}
			return submit(c, control.Request{Kind: control.KindBundle, Bundle: b})
		},
	}
	bundle.Flags().StringVar(&bundleFile, "file", "", "TOML bundle definition")
	_ = bundle.MarkFlagRequired("file")

	var (
		decomFile string
		kind      string
		userID    int
		skipDB    bool
	)
	decommission := &cobra.Command{
		Use:   "decommission",
		Short: "Run a decommission bundle, then shut the host down",
		RunE: func(c *cobra.Command, args []string) error {
			var b domain.Bundle
			if decomFile != "" {
				var err error
				if b, err = readBundle(decomFile); err != nil {
					return err
				}
			}
			return submit(c, control.Request{
				Kind:             control.KindDecommission,
				Bundle:           b,
				UserID:           userID,
				DecommissionKind: kind,
				SkipDBUpdate:     skipDB,
			})
		},
	}
	decommission.Flags().StringVar(&decomFile, "file", "", "TOML decommission bundle (optional)")
	decommission.Flags().StringVar(&kind, "kind", "", "shutdown kind: terminate, stop or reboot")
	decommission.Flags().IntVar(&userID, "user", 0, "user on whose behalf the host shuts down")
	decommission.Flags().BoolVar(&skipDB, "skip-db-update", false, "tell the coordinator not to update its records")

	runDecommission := &cobra.Command{
		Use:   "run-decommission",
		Short: "Run the decommission bundle without shutting the host down",
		RunE: func(c *cobra.Command, args []string) error {
			return submit(c, control.Request{Kind: control.KindRunDecommission})
		},
	}

	var (
		level       string
		immediately bool
	)
	shutdown := &cobra.Command{
		Use:   "shutdown",
		Short: "Ask for a shutdown once the bundle queue is idle",
		RunE: func(c *cobra.Command, args []string) error {
			return submit(c, control.Request{Kind: control.KindShutdown, Level: level, Immediately: immediately})
		},
	}
	shutdown.Flags().StringVar(&level, "level", "stop", "continue, reboot, stop or terminate")
	shutdown.Flags().BoolVar(&immediately, "immediately", false, "do not wait for queued bundles")

	terminate := &cobra.Command{
		Use:   "terminate",
		Short: "Drop queued bundles and stop the agent without decommissioning",
		RunE: func(c *cobra.Command, args []string) error {
			return submit(c, control.Request{Kind: control.KindTerminate})
		},
	}

	cmd.AddCommand(bundle, decommission, runDecommission, shutdown, terminate)
	return cmd
}

func readBundle(path string) (domain.Bundle, error) {
	var b domain.Bundle
	data, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := toml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("parse bundle %s: %w", path, err)
	}
	return b, nil
}
