//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/enduroplan/fueltrace-service-go/pkg/db/migrate"
	database "github.com/enduroplan/fueltrace-service-go/pkg/db/postgres"
)

const (
	testDbImage   = "postgres:15"
	testDbName    = "postgres"
	testDbUser    = "postgres"
	testDbPass    = "password"
	containerName = "fueltrace-service-test"
)

// starts (or reuses) the postgres test container and waits until the
// server accepts connections
func startPostgres(ctx context.Context, port nat.Port) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image:        testDbImage,
		Name:         containerName,
		ExposedPorts: []string{port.Port()},
		Env: map[string]string{
			"POSTGRES_USER":     testDbUser,
			"POSTGRES_PASSWORD": testDbPass,
			"POSTGRES_DB":       testDbName,
		},
		Cmd: []string{"postgres", "-c", "fsync=off"},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5 * time.Second)).
			WithDeadline(1 * time.Minute),
	}
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
			Reuse:            true,
		})
}

// SetupTestDb provides a pg connection pool for the fueltrace
// testdatabase. The schema is migrated to the latest version.
func SetupTestDb() *pgxpool.Pool {
	ctx := context.Background()
	port, err := nat.NewPort("tcp", "5432")
	if err != nil {
		log.Fatal(err)
	}
	container, err := startPostgres(ctx, port)
	if err != nil {
		log.Fatal(err)
	}
	containerPort, _ := container.MappedPort(ctx, port)
	host, _ := container.Host(ctx)
	dbUrl := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		testDbUser, testDbPass, host, containerPort.Port(), testDbName)

	if err = migrate.MigrateDb(dbUrl); err != nil {
		log.Fatal(err)
	}

	return database.InitWithUrl(dbUrl)
}

func ClearFuelCurveTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from fuel_curve")
}

func ClearTrackTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from track")
}

func ClearProviderTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from provider")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearFuelCurveTable(pool)
	ClearTrackTable(pool)
	ClearProviderTable(pool)
}
