// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cloudgames/schemaboot/cmd/flags"
	"github.com/cloudgames/schemaboot/pkg/config"
	"github.com/cloudgames/schemaboot/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve <config>",
		Short: "Bootstrap in the background while serving health, readiness and metrics",
		Long: `Bootstrap every database in the background while serving /healthz, /readyz and /metrics.
/readyz fails until every database is ready. A failed bootstrap keeps /readyz failing and
stops the server with the bootstrap error.`,
		Example:   "serve ./schemaboot.yaml --listen :9090",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config"},
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ready := metrics.NewReadiness()
			srv := metrics.NewServer(flags.ListenAddr(), ready)

			g, ctx := errgroup.WithContext(cmd.Context())

			g.Go(srv.ListenAndServe)

			g.Go(func() error {
				result, err := c.Bootstrap(ctx, regs)
				ready.Set(err)
				if err != nil {
					return err
				}
				pterm.Success.Printfln("%d database(s) ready (run %s)", len(result.Summaries), result.RunID)
				return nil
			})

			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	serveCmd.Flags().String("listen", ":9090", "Address serving /healthz, /readyz and /metrics")
	bindFlags(serveCmd.Flags(), map[string]string{"LISTEN_ADDR": "listen"})

	return serveCmd
}
