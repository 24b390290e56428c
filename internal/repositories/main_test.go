package repositories

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"multinet/internal/database"
)

var (
	testPool   *pgxpool.Pool
	testGorm   *gorm.DB
	skipReason = "postgres container not started"
)

// TestMain starts one postgres container for the package. Integration tests
// skip themselves when it could not be started or -short is set.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		skipReason = "integration test skipped in short mode"
		os.Exit(m.Run())
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("multinet"),
		tcpostgres.WithUsername("multinet"),
		tcpostgres.WithPassword("multinet"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		skipReason = "postgres container: " + err.Error()
		os.Exit(m.Run())
	}

	code := func() int {
		defer func() { _ = ctr.Terminate(context.Background()) }()

		dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			skipReason = err.Error()
			return m.Run()
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			skipReason = err.Error()
			return m.Run()
		}
		defer pool.Close()

		if err := database.RunMigrations(ctx, pool); err != nil {
			skipReason = err.Error()
			return m.Run()
		}
		gdb, err := database.OpenGorm(pool, false)
		if err != nil {
			skipReason = err.Error()
			return m.Run()
		}
		testPool, testGorm = pool, gdb
		return m.Run()
	}()
	os.Exit(code)
}

func requirePostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testPool == nil {
		t.Skip(skipReason)
	}
	return testPool
}
