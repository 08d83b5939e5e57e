package database

import (
	"testing"

	"github.com/localnerve/eagleview/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDialector_Unsupported(t *testing.T) {
	_, err := Dialector(&config.Config{DBType: "oracle"})
	require.Error(t, err)
}

func TestDialector_MySQLName(t *testing.T) {
	d, err := Dialector(&config.Config{DBType: "mariadb", DBHost: "db", DBPort: "3306", DBUser: "app", DBPassword: "pw", DBDatabase: "eagleview"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())
}

func TestConnect_SQLiteMemoryMigrates(t *testing.T) {
	cfg := &config.Config{DBType: "sqlite", DBDatabase: ":memory:", DBConnectionLimit: 1}
	db, err := Connect(cfg, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, AutoMigrate(db))
	for _, table := range []string{"users", "preferences", "history"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("history", "idx_history_user_ts"))
}
