// Package testsupport builds throwaway datastores for package tests.
package testsupport

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/devwanji/Muranga-marketplace2/service/models"
)

var dbCounter atomic.Int64

// OpenSQLite returns a migrated in-memory database private to the test, in the shape of frame's service.DB.
// A single connection serialises transactions the way row locks would on Postgres.
func OpenSQLite(t *testing.T) func(ctx context.Context, readOnly bool) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:subscriptions_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	return func(ctx context.Context, _ bool) *gorm.DB {
		return db.WithContext(ctx)
	}
}
