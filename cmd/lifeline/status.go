package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/bft-labs/lifeline/internal/adapters/fs"
	"github.com/bft-labs/lifeline/internal/cliconfig"
)

func newStatusCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the persisted lifecycle record",
		RunE: func(c *cobra.Command, args []string) error {
			if err := resolveConfig(c, cfg, *cfgPath); err != nil {
				return err
			}
			rec, err := fs.NewStateFileRepository(cfg.StateDir).Load(c.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}
