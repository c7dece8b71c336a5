// Package testutil opens throwaway stores for tests in other packages.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/calctree/engine/internal/models"
	"github.com/calctree/engine/internal/repository"
	"github.com/calctree/engine/pkg/database"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewSQLiteDB opens a private, migrated in-memory sqlite database that is
// closed when the test ends. The global logger must already be initialized.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, dbSeq.Add(1))

	db, err := database.Open(context.Background(), database.Options{
		Driver: database.DriverSQLite,
		DSN:    dsn,
		AppEnv: "production",
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// CreateUser stores an account with a throwaway password hash.
func CreateUser(t testing.TB, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username, PasswordHash: "x"}
	require.NoError(t, repository.NewUserRepository(db).Create(context.Background(), &u))
	return u
}
