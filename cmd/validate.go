package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			entities := 0
			for _, g := range cfg.Groups {
				entities += len(g.Entities)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d group(s), %d entit(ies)\n", len(cfg.Groups), entities)
			return nil
		},
	}
}
