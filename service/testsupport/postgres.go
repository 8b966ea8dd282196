package testsupport

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/devwanji/Muranga-marketplace2/service/models"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresUser     = "subscriptions"
	postgresPassword = "s3cr3t"
	postgresDB       = "subscriptions"
)

// OpenPostgres starts a disposable Postgres container and returns a migrated handle to it.
// The test is skipped unless TEST_WITH_CONTAINERS=1 since it needs a docker daemon.
func OpenPostgres(t *testing.T) func(ctx context.Context, readOnly bool) *gorm.DB {
	t.Helper()

	if os.Getenv("TEST_WITH_CONTAINERS") != "1" {
		t.Skip("set TEST_WITH_CONTAINERS=1 to run container backed tests")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port.Port(), postgresUser, postgresPassword, postgresDB)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	return func(ctx context.Context, _ bool) *gorm.DB {
		return db.WithContext(ctx)
	}
}
