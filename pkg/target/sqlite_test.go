// SPDX-License-Identifier: Apache-2.0

package target_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgames/schemaboot/internal/testutils"
	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/db"
	"github.com/cloudgames/schemaboot/pkg/migrations"
	"github.com/cloudgames/schemaboot/pkg/target"
)

var usersUnits = migrations.ListSource{
	{Name: "01_create_users", Up: "CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, email TEXT NOT NULL)"},
	{Name: "02_create_roles", Up: "CREATE TABLE IF NOT EXISTS roles (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"},
	{Name: "03_index_email", Up: "CREATE UNIQUE INDEX IF NOT EXISTS users_email ON users (email)"},
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestSQLiteExistsAndCreate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "users.db")
	tgt, err := target.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { tgt.Close() })

	ctx := context.Background()

	exists, err := tgt.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, tgt.Create(ctx))

	exists, err = tgt.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	err = tgt.Create(ctx)
	require.Error(t, err)
	assert.True(t, db.IsAlreadyExists(err))
}

func TestSQLiteMemoryAlwaysExists(t *testing.T) {
	t.Parallel()

	tgt, err := target.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { tgt.Close() })

	exists, err := tgt.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)

	result, err := bootstrap.New(bootstrap.WithSleeper(noSleep)).Bootstrap(context.Background(),
		[]bootstrap.Registration{{Name: "Games", Source: usersUnits, Target: tgt}})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Summaries[0].Applied)
}

func TestSQLiteAppliedBeforeHistoryExists(t *testing.T) {
	t.Parallel()

	testutils.WithSQLite(t, func(_ *sql.DB, path string) {
		tgt, err := target.NewSQLite(path)
		require.NoError(t, err)
		t.Cleanup(func() { tgt.Close() })

		applied, err := tgt.Applied(context.Background())
		require.NoError(t, err)
		assert.Empty(t, applied)
	})
}

func TestSQLiteBootstrap(t *testing.T) {
	t.Parallel()

	path := testutils.SQLitePath(t)
	tgt, err := target.NewSQLite(path, target.WithHistoryTable("users_migrations"))
	require.NoError(t, err)
	t.Cleanup(func() { tgt.Close() })

	coord := bootstrap.New(bootstrap.WithSleeper(noSleep))
	regs := []bootstrap.Registration{{Name: "Users", Source: usersUnits, Target: tgt}}

	result, err := coord.Bootstrap(context.Background(), regs)
	require.NoError(t, err)
	assert.True(t, result.Summaries[0].Created)
	assert.Equal(t, 3, result.Summaries[0].Applied)

	// a second run is a no-op
	result, err = coord.Bootstrap(context.Background(), regs)
	require.NoError(t, err)
	assert.False(t, result.Summaries[0].Created)
	assert.Equal(t, 0, result.Summaries[0].Applied)

	statuses, err := coord.Status(context.Background(), regs)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, []string{"01_create_users", "02_create_roles", "03_index_email"}, statuses[0].Applied)
	assert.Empty(t, statuses[0].Pending)

	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer conn.Close()

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM users_migrations").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestSQLiteUnitInsertedBeforeAppliedUnitIsRejected(t *testing.T) {
	t.Parallel()

	path := testutils.SQLitePath(t)
	tgt, err := target.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { tgt.Close() })

	ctx := context.Background()
	coord := bootstrap.New(bootstrap.WithSleeper(noSleep))
	released := migrations.ListSource{usersUnits[0], usersUnits[2]}

	result, err := coord.Bootstrap(ctx, []bootstrap.Registration{{Name: "Users", Source: released, Target: tgt}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summaries[0].Applied)

	// 02 lands in the source after 03 already ran
	_, err = coord.Bootstrap(ctx, []bootstrap.Registration{{Name: "Users", Source: usersUnits, Target: tgt}})
	require.Error(t, err)

	var fatal *bootstrap.FatalConfigurationError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "Users", fatal.Database)

	applied, err := tgt.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"01_create_users", "03_index_email"}, applied)

	// rolling back to the released source still starts cleanly
	result, err = coord.Bootstrap(ctx, []bootstrap.Registration{{Name: "Users", Source: released, Target: tgt}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Summaries[0].Applied)
}

func TestSQLiteConcurrentReplicas(t *testing.T) {
	t.Parallel()

	const replicas = 4
	path := testutils.SQLitePath(t)

	var wg sync.WaitGroup
	results := make([]*bootstrap.Result, replicas)
	errs := make([]error, replicas)

	for i := range replicas {
		wg.Add(1)
		go func() {
			defer wg.Done()

			tgt, err := target.NewSQLite(path, target.WithLockTimeoutMs(5000))
			if err != nil {
				errs[i] = err
				return
			}
			defer tgt.Close()

			results[i], errs[i] = bootstrap.New(bootstrap.WithSleeper(noSleep)).Bootstrap(context.Background(),
				[]bootstrap.Registration{{Name: "Users", Source: usersUnits, Target: tgt}})
		}()
	}
	wg.Wait()

	created, applied := 0, 0
	for i := range replicas {
		require.NoError(t, errs[i], "replica %d", i)
		s := results[i].Summaries[0]
		if s.Created {
			created++
		}
		applied += s.Applied
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, len(usersUnits), applied)

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := target.New("oracle", "x", "")
	require.Error(t, err)
	assert.True(t, db.IsFatal(err))
}
