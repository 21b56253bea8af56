// SPDX-License-Identifier: Apache-2.0

package benchmarks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/migrations"
	"github.com/cloudgames/schemaboot/pkg/target"
)

const unitUnitsPerSecond = "units/s"

var (
	unitCounts   = []int{10, 100, 500}
	replicaCount = []int{1, 4}

	recorder = newReportRecorder()
)

func TestMain(m *testing.M) {
	code := m.Run()

	if path := os.Getenv("BENCHMARK_REPORT"); path != "" && len(recorder.Reports) > 0 {
		if err := recorder.WriteJSON(path); err != nil {
			fmt.Fprintf(os.Stderr, "writing benchmark report: %v\n", err)
			code = 1
		}
	}

	os.Exit(code)
}

func BenchmarkBootstrapSQLite(b *testing.B) {
	ctx := context.Background()

	for _, replicas := range replicaCount {
		for _, unitCount := range unitCounts {
			name := fmt.Sprintf("replicas=%d/units=%s", replicas, strconv.Itoa(unitCount))
			b.Run(name, func(b *testing.B) {
				source := generateUnits(unitCount)

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					b.StopTimer()
					path := filepath.Join(b.TempDir(), "bench.db")
					b.StartTimer()

					g, ctx := errgroup.WithContext(ctx)
					for r := 0; r < replicas; r++ {
						g.Go(func() error {
							return bootstrapReplica(ctx, path, source)
						})
					}
					require.NoError(b, g.Wait())
				}
				b.StopTimer()

				unitsPerSecond := float64(unitCount*b.N) / b.Elapsed().Seconds()
				b.ReportMetric(unitsPerSecond, unitUnitsPerSecond)
				recorder.AddReport(Report{
					Name:           b.Name(),
					Driver:         string(target.DriverSQLite),
					Units:          unitCount,
					Replicas:       replicas,
					UnitsPerSecond: unitsPerSecond,
				})
			})
		}
	}
}

func bootstrapReplica(ctx context.Context, path string, source migrations.Source) error {
	t, err := target.NewSQLite(path, target.WithLockTimeoutMs(5000))
	if err != nil {
		return err
	}
	defer t.Close()

	_, err = bootstrap.New(bootstrap.WithDelay(0)).Bootstrap(ctx, []bootstrap.Registration{
		{Name: "bench", Source: source, Target: t},
	})
	return err
}

func generateUnits(n int) migrations.ListSource {
	units := make(migrations.ListSource, 0, n)
	for i := range n {
		units = append(units, migrations.Unit{
			Name: fmt.Sprintf("%04d_create_table", i+1),
			Up:   fmt.Sprintf("CREATE TABLE t_%04d (id INTEGER PRIMARY KEY, payload TEXT)", i+1),
		})
	}
	return units
}
