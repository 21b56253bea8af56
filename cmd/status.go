// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cloudgames/schemaboot/pkg/config"
	"github.com/cloudgames/schemaboot/pkg/state"
)

func statusCmd() *cobra.Command {
	var output string

	statusCmd := &cobra.Command{
		Use:       "status <config>",
		Short:     "Show the migration status of every database without changing anything",
		Example:   "status ./schemaboot.yaml --output json",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if output != "table" && output != "json" {
				return errInvalidOutput
			}

			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			c, err := NewCoordinator(cfg)
			if err != nil {
				return err
			}

			regs, closeAll, err := cfg.Registrations()
			if err != nil {
				return err
			}
			defer closeAll()

			statuses, err := c.Status(ctx, regs)
			if err != nil {
				return err
			}

			if output == "json" {
				statusJSON, err := json.MarshalIndent(statuses, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(statusJSON))
				return nil
			}

			return renderStatus(statuses)
		},
	}

	statusCmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")

	return statusCmd
}

func renderStatus(statuses []state.Status) error {
	data := pterm.TableData{{"Database", "Exists", "Applied", "Pending", "Status"}}
	for _, s := range statuses {
		data = append(data, []string{
			s.Database,
			strconv.FormatBool(s.Exists),
			strconv.Itoa(len(s.Applied)),
			strconv.Itoa(len(s.Pending)),
			string(s.Status),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
