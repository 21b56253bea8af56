// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/config"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "validate <config>",
		Short:     "Validate a configuration file and the migrations it references",
		Long:      "Validate a configuration file against its schema, then read every migration directory and check the syntax of postgres migrations. No database is contacted.",
		Example:   "validate ./schemaboot.yaml",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			regs, closeAll, err := cfg.Registrations()
			if err != nil {
				return err
			}
			defer closeAll()

			if err := bootstrap.Validate(regs); err != nil {
				return err
			}

			fmt.Printf("Configuration is valid: %d database(s)\n", len(regs))
			return nil
		},
	}
}
