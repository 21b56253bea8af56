// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DatabasesCreatedTotal tracks databases created by the coordinator.
var DatabasesCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "schemaboot_databases_created_total",
		Help: "Total logical databases created",
	},
	[]string{"database"},
)

// RacesDetectedTotal tracks objects found already created by another
// replica.
var RacesDetectedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "schemaboot_races_detected_total",
		Help: "Total creation races lost to a concurrent replica",
	},
	[]string{"database"},
)

// MigrationsAppliedTotal tracks migration units applied.
var MigrationsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "schemaboot_migrations_applied_total",
		Help: "Total migration units applied",
	},
	[]string{"database"},
)

// MigrationsPending tracks the pending units seen by the last attempt.
var MigrationsPending = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "schemaboot_migrations_pending",
		Help: "Migration units pending at the start of the last attempt",
	},
	[]string{"database"},
)

// AttemptFailuresTotal tracks failed attempts by error class.
var AttemptFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "schemaboot_attempt_failures_total",
		Help: "Total failed bootstrap attempts",
	},
	[]string{"database", "class"},
)

// BootstrapsTotal tracks finished database bootstraps by outcome.
var BootstrapsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "schemaboot_bootstraps_total",
		Help: "Total database bootstraps by outcome",
	},
	[]string{"database", "outcome"},
)

// BootstrapDuration tracks the time taken to make a database ready.
var BootstrapDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "schemaboot_bootstrap_duration_seconds",
		Help:    "Time taken to bring a database to a fully migrated state",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"database"},
)
