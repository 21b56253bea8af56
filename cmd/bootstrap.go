// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/config"
)

func bootstrapCmd() *cobra.Command {
	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap <config>",
		Short: "Create and migrate every database listed in the configuration file",
		Long: `Create and migrate every database listed in the configuration file, in order.
Databases that already exist are left in place and only their pending migrations are applied.
Transient failures are retried; the command exits non-zero on the first database that fails.`,
		Example:   "bootstrap ./schemaboot.yaml",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

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

			result, err := c.Bootstrap(ctx, regs)
			if result != nil {
				if renderErr := renderSummary(result); renderErr != nil {
					return renderErr
				}
			}
			return err
		},
	}

	return bootstrapCmd
}

func renderSummary(result *bootstrap.Result) error {
	data := pterm.TableData{{"Database", "Created", "Applied", "Attempts", "Race", "Elapsed"}}
	for _, s := range result.Summaries {
		data = append(data, []string{
			s.Name,
			strconv.FormatBool(s.Created),
			strconv.Itoa(s.Applied),
			strconv.Itoa(s.Attempts),
			strconv.FormatBool(s.RaceDetected),
			s.Elapsed.Round(time.Millisecond).String(),
		})
	}
	if result.Failed != "" {
		data = append(data, []string{result.Failed, "-", "-", "-", "-", "failed"})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	if result.OK() {
		pterm.Success.Printfln("%d database(s) ready (run %s)", len(result.Summaries), result.RunID)
	}
	return nil
}
